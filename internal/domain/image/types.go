package image

// Role identifies which side of the try-on the image feeds.
type Role string

const (
	// RoleSubject is the customer photo. Pose and background must survive
	// normalization untouched.
	RoleSubject Role = "subject"
	// RoleGarment is the clothing asset.
	RoleGarment Role = "garment"
)

// Limits bounds accepted inputs before a full decode is attempted.
type Limits struct {
	MaxFileSize int64
	MaxPixels   int64
	MaxWidth    int
	MaxHeight   int
}
