// Package privacy hides the parts of a user's profile that another user is
// not allowed to see.
//
// Each user chooses a visibility level per field: public, private,
// organization (shared organization membership) or department (shared
// department, directly or through role assignments). Users who never saved
// settings get DefaultSettings, optionally overridden by the privacy.* keys of
// their home organization's settings.
//
//	filter := privacy.NewFilter(privacy.NewStore(db), dir, dir)
//	visible, err := filter.ApplyFilter(ctx, record, viewerID)
package privacy
