package query

// DocClass is one of the fixed document-class buckets spec.md's Glossary
// defines, reproduced here as the authority for exact extension
// membership — original_source/service/src/file_types.rs's table differs
// slightly (it folds pdf into its Text category); spec.md supersedes it
// (see SPEC_FULL.md, Supplemented Features #1).
type DocClass string

const (
	DocClassText         DocClass = "text"
	DocClassCode         DocClass = "code"
	DocClassImage        DocClass = "image"
	DocClassSpreadsheet  DocClass = "spreadsheet"
	DocClassPresentation DocClass = "presentation"
	DocClassArchive      DocClass = "archive"
	DocClassAudio        DocClass = "audio"
	DocClassVideo        DocClass = "video"
	DocClassPDF          DocClass = "pdf"
)

var docClassExtensions = map[DocClass][]string{
	DocClassText: {"txt", "md", "markdown", "rtf", "odt", "doc", "docx", "tex", "log"},
	DocClassCode: {
		"rs", "py", "js", "ts", "jsx", "tsx", "java", "c", "cpp", "h", "hpp", "cs", "go",
		"rb", "php", "swift", "kt", "scala", "m", "mm", "sh", "bash", "ps1", "bat", "html",
		"css", "scss", "sass", "less", "json", "yaml", "toml", "xml", "sql", "ini", "cfg",
		"conf", "env", "gitignore", "dockerfile", "makefile", "lua", "perl", "r", "vue", "svelte",
	},
	DocClassImage:        {"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff", "tif", "svg", "ico", "heic"},
	DocClassSpreadsheet:  {"xls", "xlsx", "xlsm", "ods", "csv", "tsv"},
	DocClassPresentation: {"ppt", "pptx", "odp", "key"},
	DocClassArchive:      {"zip", "rar", "7z", "tar", "gz", "bz2", "xz", "zst", "lzma", "lz4", "lzh", "cab"},
	DocClassAudio:        {"mp3", "wav", "ogg", "flac", "aac", "m4a", "wma", "aiff", "aif", "midi", "mid"},
	DocClassVideo:        {"mp4", "avi", "mkv", "mov", "wmv", "flv", "webm", "m4v", "mpeg", "mpg", "3gp"},
	DocClassPDF:          {"pdf"},
}

// ExtensionsForDocClass returns the fixed extension set for class, or nil
// if class is unrecognized.
func ExtensionsForDocClass(class DocClass) []string {
	return docClassExtensions[class]
}

// ValidDocClass reports whether class is one of the nine recognized
// buckets.
func ValidDocClass(class DocClass) bool {
	_, ok := docClassExtensions[class]
	return ok
}
