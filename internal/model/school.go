package model

import "time"

// ApplicationType は出願方式を表す。
type ApplicationType string

const (
	ApplicationTypeRD  ApplicationType = "RD"
	ApplicationTypeEA  ApplicationType = "EA"
	ApplicationTypeED  ApplicationType = "ED"
	ApplicationTypeED2 ApplicationType = "ED2"
)

// Valid は定義済みの出願方式かを返す。
func (t ApplicationType) Valid() bool {
	switch t {
	case ApplicationTypeRD, ApplicationTypeEA, ApplicationTypeED, ApplicationTypeED2:
		return true
	}
	return false
}

// School は全ユーザー共有のカタログデータ。
type School struct {
	ID             int64
	Name           string
	City           string
	State          string
	Size           int
	Tuition        int
	AcceptanceRate float64
}

// Deadline は学校の出願方式ごとの締切日。
type Deadline struct {
	ID              int64
	SchoolID        int64
	ApplicationType ApplicationType
	Date            time.Time
}

// Supplement は学校が課すエッセイ課題。
type Supplement struct {
	ID          int64
	SchoolID    int64
	Prompt      string
	Description string
	WordCount   string
}
