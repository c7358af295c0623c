package utils

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateQRCodePNG(t *testing.T) {
	png, err := GenerateQRCodePNG("https://rifas.example.com/orders/abc", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

	_, err = GenerateQRCodePNG("", 256)
	assert.Error(t, err)

	small, err := GenerateQRCodePNG("x", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, small)
}

func TestGenerateUniqueFilename(t *testing.T) {
	name := GenerateUniqueFilename("../../Moto Roja.PNG", "image/png")
	assert.Regexp(t, regexp.MustCompile(`^Moto_Roja_[0-9a-f-]{36}\.png$`), name)

	noExt := GenerateUniqueFilename("cover", "image/webp")
	assert.Regexp(t, regexp.MustCompile(`^cover_[0-9a-f-]{36}\.webp$`), noExt)

	assert.NotEqual(t, GenerateUniqueFilename("a.jpg", ""), GenerateUniqueFilename("a.jpg", ""))
}

func fileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["image"][0]
}

func TestValidateImageFile(t *testing.T) {
	img := fileHeader(t, "moto.webp", "image/webp", bytes.Repeat([]byte{1}, 100))
	assert.NoError(t, ValidateImageFile(img, 1000))
	assert.NoError(t, ValidateImageFile(img, 0))
	assert.Error(t, ValidateImageFile(img, 50))

	pdf := fileHeader(t, "doc.pdf", "application/pdf", []byte("%PDF"))
	assert.Error(t, ValidateImageFile(pdf, 0))
}

func TestSaveUploadedFile(t *testing.T) {
	img := fileHeader(t, "moto.png", "image/png", []byte("not really a png"))
	dir := filepath.Join(t.TempDir(), "raffles")

	require.NoError(t, SaveUploadedFile(img, dir, "saved.png"))
	data, err := os.ReadFile(filepath.Join(dir, "saved.png"))
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(data))
}

func TestResponseEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error {
		return SuccessWithMeta(c, []int{1, 2}, NewMeta(2, 2, 5), "listed")
	})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return ErrorWithData(c, "taken", fiber.Map{"conflicting_tickets": []int{4}}, fiber.StatusConflict)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"listed","data":[1,2],"meta":{"page":2,"page_size":2,"total":5,"total_page":3}}`, string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/conflict", nil))
	require.NoError(t, err)
	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "taken", env.Error)
	assert.NotNil(t, env.Data)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hashed, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("correct horse", hashed))
	assert.Error(t, CheckPassword("wrong horse", hashed))
}
