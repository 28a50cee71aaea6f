package catalogue

// ApplyPathFilter turns a creation-side exclusion decision into the
// in-memory form the add cursor understands, per spec section 3.2's
// ignored/ignored_dir distinction. The caller (the filesystem walker)
// decides *whether* a path is excluded and whether it wants an
// excluded directory kept as an empty placeholder (the
// options.Filter.EmptyDirForExcluded rule); this function only decides
// *what entry* results from that call:
//
//   - not excluded: e is returned unchanged.
//   - excluded directory, emptyDirForExcluded: e is returned with its
//     children cleared, becoming "ignored_dir" — it still reaches the
//     archive, empty.
//   - anything else excluded: an *Ignored placeholder is returned, so
//     Catalogue.Add can recognize and drop it before it ever becomes a
//     child ("ignored" — no wire representation at all).
func ApplyPathFilter(e Entry, excluded, emptyDirForExcluded bool) Entry {
	if !excluded {
		return e
	}
	if dir, ok := e.(*Directory); ok && emptyDirForExcluded {
		dir.Children = nil
		return dir
	}
	return NewIgnored(e.Name())
}
