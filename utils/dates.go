package utils

import "time"

// publicationDateLayout renders dates the way the blog displays them,
// e.g. "September 01, 2026". Stored as-is on the post; never sorted on.
const publicationDateLayout = "January 02, 2006"

// PublicationDate formats t as the display string stamped on a post at
// creation time.
func PublicationDate(t time.Time) string {
	return t.Format(publicationDateLayout)
}
