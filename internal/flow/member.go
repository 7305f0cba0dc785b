package flow

// Member is a read-only copy of a directory record. The directory owns the
// data; members are fetched on demand and never persisted beyond the session.
type Member struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	PhotoURL     string `json:"photo_url,omitempty"`
	MemberStatus string `json:"member_status,omitempty"`
}

// Directory is the external member-lookup/search/OTP collaborator consumed by
// the check-in flow.
type Directory interface {
	LookupMemberByPhone(phone, churchID string) (*Member, error)
	SearchMembers(query, churchID string) ([]Member, error)
	SendOTP(phone, churchID string) (expiresInSeconds int, err error)
	VerifyOTP(phone, code string) (bool, error)
}
