package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBuilders(t *testing.T) {
	f := &File{Name: "files/demo", URI: "https://files.example/demo", MIMEType: "video/mp4"}

	part := VideoPart(f)
	require.NotNil(t, part.FileData)
	assert.Equal(t, "https://files.example/demo", part.FileData.FileURI)
	assert.Equal(t, "video/mp4", part.FileData.MIMEType)

	user := UserContent(part, TextPart("analyze my serve"))
	assert.Equal(t, RoleUser, user.Role)
	require.Len(t, user.Parts, 2)

	model := ModelContent("toss is low")
	assert.Equal(t, RoleModel, model.Role)
	assert.Equal(t, "toss is low", model.Parts[0].Text)

	assert.Nil(t, SystemInstruction(""))
	sys := SystemInstruction("You are a tennis coach.")
	require.NotNil(t, sys)
	assert.Empty(t, sys.Role)
}
