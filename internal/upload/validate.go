package upload

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultMaxAudioSize = 100 << 20
	DefaultMaxCoverSize = 10 << 20
)

// AllowedAudioTypes is the audio MIME allow-list.
var AllowedAudioTypes = map[string]bool{
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/flac":   true,
	"audio/x-flac": true,
	"audio/mp4":    true,
	"audio/m4a":    true,
	"audio/x-m4a":  true,
}

// AllowedCoverTypes is the cover image MIME allow-list.
var AllowedCoverTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var uploadIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// File is one part of a submission. Content must be seekable so the cover
// header can be inspected before the bytes are stored.
type File struct {
	Content     io.ReadSeeker
	Size        int64
	ContentType string
	Filename    string
}

type SubmitRequest struct {
	UploadID     string    `form:"uploadId" validate:"omitempty,upload_id"`
	OwnerID      uuid.UUID `form:"ownerId"`
	Title        string    `form:"title" validate:"required,max=255"`
	ArtistID     string    `form:"artistId" validate:"required,uuid"`
	AlbumID      string    `form:"albumId" validate:"omitempty,uuid"`
	GenreID      string    `form:"genreId" validate:"omitempty,uuid"`
	Status       string    `form:"status" validate:"omitempty,oneof=draft published private"`
	DurationHint *int      `form:"duration" validate:"omitempty,min=0,max=86400"`
	Audio        *File     `form:"audio" validate:"required"`
	Cover        *File     `form:"cover"`
}

type Limits struct {
	MaxAudioSize int64
	MaxCoverSize int64
}

// Validator checks a submission before any side effect happens.
type Validator struct {
	v      *validator.Validate
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	if limits.MaxAudioSize <= 0 {
		limits.MaxAudioSize = DefaultMaxAudioSize
	}
	if limits.MaxCoverSize <= 0 {
		limits.MaxCoverSize = DefaultMaxCoverSize
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("upload_id", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return uploadIDPattern.MatchString(s) && !strings.Contains(s, "..")
	})

	return &Validator{v: v, limits: limits}
}

func (val *Validator) Validate(req *SubmitRequest) error {
	if req.OwnerID == uuid.Nil {
		return apperror.ErrUnauthorized
	}

	if err := val.v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperror.Wrap(err, apperror.WithMessage(apperror.ErrValidation, formatValidationErrors(verrs)))
		}
		return apperror.Wrap(err, apperror.ErrValidation)
	}

	audio := req.Audio
	if !AllowedAudioTypes[metadata.NormalizeContentType(audio.ContentType)] {
		return apperror.WithMessage(apperror.ErrInvalidFileType,
			fmt.Sprintf("Audio type %q is not supported. Use mp3, wav, flac or m4a", audio.ContentType))
	}
	if audio.Size > val.limits.MaxAudioSize {
		return apperror.WithMessage(apperror.ErrFileTooLarge,
			fmt.Sprintf("Audio exceeds the %d MB limit", val.limits.MaxAudioSize>>20))
	}
	if audio.Size <= 0 || audio.Content == nil {
		return apperror.WithMessage(apperror.ErrValidation, "Audio file is empty")
	}

	if cover := req.Cover; cover != nil {
		if err := val.validateCover(cover); err != nil {
			return err
		}
	}
	return nil
}

func (val *Validator) validateCover(cover *File) error {
	if !AllowedCoverTypes[metadata.NormalizeContentType(cover.ContentType)] {
		return apperror.WithMessage(apperror.ErrInvalidFileType,
			fmt.Sprintf("Cover type %q is not supported. Use jpeg, png, webp or gif", cover.ContentType))
	}
	if cover.Size > val.limits.MaxCoverSize {
		return apperror.WithMessage(apperror.ErrFileTooLarge,
			fmt.Sprintf("Cover exceeds the %d MB limit", val.limits.MaxCoverSize>>20))
	}
	if cover.Size <= 0 || cover.Content == nil {
		return apperror.WithMessage(apperror.ErrValidation, "Cover file is empty")
	}

	_, err := metadata.CheckCover(cover.Content, cover.ContentType)
	if _, seekErr := cover.Content.Seek(0, io.SeekStart); seekErr != nil {
		return apperror.Wrap(seekErr, apperror.ErrBadRequest)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, metadata.ErrUnsupported):
		return apperror.Wrap(err, apperror.WithMessage(apperror.ErrInvalidFileType, "Cover content does not match an allowed image type"))
	default:
		return apperror.Wrap(err, apperror.WithMessage(apperror.ErrValidation, "Cover is not a valid image"))
	}
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", e.Field(), e.Tag()))
	}
	sort.Strings(fields)
	return "Invalid fields: " + strings.Join(fields, ", ")
}
