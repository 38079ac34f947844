package pdf

// FileInfo is a PDF found under the file root
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// PDFFieldsFileRequest lists the form fields of a PDF file
type PDFFieldsFileRequest struct {
	Path string `json:"path"`
}

// PDFFillFileRequest fills a PDF file and writes the result to Output.
// Signatures are drawn into the named fields instead of being set as values.
type PDFFillFileRequest struct {
	Path       string            `json:"path"`
	Output     string            `json:"output"`
	Fields     map[string]string `json:"fields,omitempty"`
	Signatures map[string]string `json:"signatures,omitempty"`
	Stamp      string            `json:"stamp,omitempty"`
	StampColor string            `json:"stamp_color,omitempty"`
	Flatten    bool              `json:"flatten"`
}

// PDFMergeFilesRequest concatenates PDF files in order
type PDFMergeFilesRequest struct {
	Paths  []string `json:"paths"`
	Output string   `json:"output"`
}

// PDFValidateFileRequest checks that a file is a readable PDF
type PDFValidateFileRequest struct {
	Path string `json:"path"`
}

// PDFStatsFileRequest asks for size, page and field counts of a PDF file
type PDFStatsFileRequest struct {
	Path string `json:"path"`
}

// PDFSearchDirectoryRequest lists the PDFs of a directory whose names match Query
type PDFSearchDirectoryRequest struct {
	Directory string `json:"directory"`
	Query     string `json:"query"`
}

// PDFFieldsFileResult lists the fields found in a PDF file
type PDFFieldsFileResult struct {
	Path   string      `json:"path"`
	Pages  int         `json:"pages"`
	Fields []FieldInfo `json:"fields"`
}

// PDFFillFileResult describes a filled PDF written to disk
type PDFFillFileResult struct {
	Output    string   `json:"output"`
	Size      int64    `json:"size"`
	Pages     int      `json:"pages"`
	FieldsSet int      `json:"fields_set"`
	Placed    []string `json:"placed,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
	Stamped   bool     `json:"stamped"`
	Flattened bool     `json:"flattened"`
}

// PDFMergeFilesResult describes a merged PDF written to disk
type PDFMergeFilesResult struct {
	Output  string   `json:"output"`
	Size    int64    `json:"size"`
	Pages   int      `json:"pages"`
	Merged  []string `json:"merged"`
	Skipped []string `json:"skipped,omitempty"`
}

// PDFStatsFileResult holds the statistics of one PDF file
type PDFStatsFileResult struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
	Fields       int    `json:"fields"`
	CreatedDate  string `json:"created_date,omitempty"`
	ModifiedDate string `json:"modified_date"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Producer     string `json:"producer,omitempty"`
}

// PDFSearchDirectoryResult lists matching files, relative to the file root
type PDFSearchDirectoryResult struct {
	Files       []FileInfo `json:"files"`
	TotalCount  int        `json:"total_count"`
	Directory   string     `json:"directory"`
	SearchQuery string     `json:"search_query,omitempty"`
}

// PDFServerInfoResult describes the server, its tools and the file root
type PDFServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	TotalFiles        int        `json:"total_files"`
}

// ToolInfo names a registered tool and summarizes it
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  string `json:"parameters"`
}
