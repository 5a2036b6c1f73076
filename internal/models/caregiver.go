package models

// CaregiverContact 护理人员/紧急联系人（来自外部患者目录）
type CaregiverContact struct {
	ContactID          string `json:"contact_id" db:"contact_id"`
	Name               string `json:"name" db:"name"`
	Role               string `json:"role" db:"role"` // Caregiver, Family, Nurse
	Phone              string `json:"phone,omitempty" db:"phone"`
	Email              string `json:"email,omitempty" db:"email"`
	PushTopic          string `json:"push_topic,omitempty" db:"push_topic"`
	ReceiveSMS         bool   `json:"receive_sms" db:"receive_sms"`
	ReceiveEmail       bool   `json:"receive_email" db:"receive_email"`
	ReceivePush        bool   `json:"receive_push" db:"receive_push"`
	IsEmergencyContact bool   `json:"is_emergency_contact" db:"is_emergency_contact"`
}

// Patient 患者基本信息（只读）
type Patient struct {
	PatientID         string `json:"patient_id" db:"patient_id"`
	DisplayName       string `json:"display_name" db:"display_name"`
	PreferredLanguage string `json:"preferred_language" db:"preferred_language"`
	CallbackNumber    string `json:"callback_number" db:"callback_number"`
}
