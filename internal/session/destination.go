package session

// DefaultInventoryDestination is where an inventory goes when no
// destination is given.
func DefaultInventoryDestination(vault string) string {
	return "glacier-" + vault + "-inventory.json"
}

// DefaultDownloadDestination is where an archive goes when no destination is
// given: the first 16 characters of its ID with an .archive suffix, in the
// working directory.
func DefaultDownloadDestination(archiveID string) string {
	name := archiveID
	if len(name) > 16 {
		name = name[:16]
	}
	return name + ".archive"
}
