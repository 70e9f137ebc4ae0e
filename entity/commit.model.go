package entity

// Commit is the metadata of one commit in a feature group's timeline.
type Commit struct {
	CommitID         int64  `json:"commitID"`
	CommitDateString string `json:"commitDateString"`
	RowsInserted     int64  `json:"rowsInserted"`
	RowsUpdated      int64  `json:"rowsUpdated"`
	RowsDeleted      int64  `json:"rowsDeleted"`
}
