package attachment

import "github.com/crewdesk/backend/internal/infrastructure/storage"

// UploadURLRequest is the body of POST /attachments/upload-url
type UploadURLRequest struct {
	Scope       string `json:"scope" binding:"required,oneof=jobs quotes invoices customers"`
	OwnerID     string `json:"owner_id" binding:"required,uuid"`
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required,max=120"`
	Size        int64  `json:"size" binding:"required,min=1"`
}

// UploadURLResponse carries the object key to store on the record and the PUT to perform
type UploadURLResponse struct {
	Key      string               `json:"key"`
	FileName string               `json:"file_name"`
	Upload   storage.PresignedURL `json:"upload"`
}

// DownloadURLResponse carries a time-limited GET
type DownloadURLResponse struct {
	Key      string               `json:"key"`
	Download storage.PresignedURL `json:"download"`
}
