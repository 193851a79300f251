package gemini

import (
	"context"

	"tenniscoach/pkg/apierrors"
)

// Roles recognized by the generation API.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// VideoPart references an uploaded, ACTIVE file.
func VideoPart(f *File) Part {
	return Part{FileData: &FileData{MIMEType: f.MIMEType, FileURI: f.URI}}
}

// UserContent builds one user turn from parts.
func UserContent(parts ...Part) Content {
	return Content{Role: RoleUser, Parts: parts}
}

// ModelContent builds one model turn from text.
func ModelContent(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{TextPart(text)}}
}

// SystemInstruction builds the system instruction content. System text
// carries no role.
func SystemInstruction(text string) *Content {
	if text == "" {
		return nil
	}
	return &Content{Parts: []Part{TextPart(text)}}
}

// GenerateText performs a streaming generation call and blocks until the full
// response text is assembled. Mid-stream failures surface as-is; callers that
// want incremental output use StreamGenerateContent directly.
func (c *Client) GenerateText(ctx context.Context, req *GenerateRequest) (string, error) {
	if len(req.Contents) == 0 {
		return "", apierrors.NewError(apierrors.ErrorTypeBadRequest, "generation request has no contents")
	}
	stream, err := c.StreamGenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	return stream.Text()
}
