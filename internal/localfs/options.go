package localfs

import "github.com/sharedrop/sharedrop/internal/constants"

// ListOptions configures directory listings.
type ListOptions struct {
	// IncludeHidden includes hidden files and directories (starting with .).
	// Default is false (hidden items excluded, and hidden directories are not descended).
	IncludeHidden bool

	// PageSize is the number of directory entries read per ReadEntries call.
	// Zero means constants.DirectoryPageSize.
	PageSize int
}

func (o ListOptions) pageSize() int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	return constants.DirectoryPageSize
}
