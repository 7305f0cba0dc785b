package models

// Church is the local record of a congregation a kiosk can serve.
// DirectoryID is the identifier the external member directory knows the
// church by; it is the church_id sent on every directory call.
type Church struct {
	BaseModel
	Name        string `json:"name"`
	City        string `json:"city"`
	DirectoryID string `gorm:"uniqueIndex" json:"directory_id"`
}
