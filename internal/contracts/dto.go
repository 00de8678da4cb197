package contracts

import "time"

// ContractResponse is the outward-facing representation of a contract.
type ContractResponse struct {
	ContractID string    `json:"contractId"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	Extracted  bool      `json:"extracted"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toResponse(c Contract) ContractResponse {
	return ContractResponse{
		ContractID: c.ID,
		FileName:   c.FileName,
		MimeType:   c.MimeType,
		SizeBytes:  c.SizeBytes,
		Extracted:  c.ExtractedTextKey != "",
		UploadedAt: c.CreatedAt,
	}
}
