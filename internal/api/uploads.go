package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/google/uuid"
)

// multipartMemory is how much of a submission is kept in memory before the
// remaining parts spill to temporary files.
const multipartMemory = 32 << 20

type submitResponse struct {
	UploadID       string          `json:"uploadId"`
	Status         db.UploadStatus `json:"status"`
	JobID          string          `json:"jobId"`
	CheckStatusURL string          `json:"checkStatusUrl"`
	ResultEntityID string          `json:"resultEntityId,omitempty"`
}

func submitHandler(cfg *Config) http.HandlerFunc {
	maxAudio := cfg.MaxAudioSize
	if maxAudio <= 0 {
		maxAudio = upload.DefaultMaxAudioSize
	}
	maxCover := cfg.MaxCoverSize
	if maxCover <= 0 {
		maxCover = upload.DefaultMaxCoverSize
	}
	// Field values and multipart framing get a megabyte of headroom.
	maxBody := maxAudio + maxCover + 1<<20

	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := GetOwnerID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrFileTooLarge))
				return
			}
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "bad_request",
				"Request must be multipart/form-data", http.StatusBadRequest))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		req, closeFiles, err := parseSubmitRequest(r, ownerID)
		defer closeFiles()
		if err != nil {
			apperror.WriteJSON(w, r, err)
			return
		}

		ctx := r.Context()
		if req.UploadID != "" {
			ctx = logger.WithUploadID(ctx, req.UploadID)
		}
		if req.Audio != nil {
			logger.FromContext(ctx).Info("upload received",
				"filename", req.Audio.Filename,
				"size", req.Audio.Size,
				"has_cover", req.Cover != nil,
			)
		}
		res, err := cfg.Orchestrator.Submit(ctx, req)
		if err != nil {
			apperror.WriteJSON(w, r, err)
			return
		}

		writeJSON(w, http.StatusAccepted, submitResponse{
			UploadID:       res.UploadID,
			Status:         res.Status,
			JobID:          res.JobID,
			CheckStatusURL: statusURL(cfg.BaseURL, res.UploadID),
			ResultEntityID: res.ResultTrackID,
		})
	}
}

func parseSubmitRequest(r *http.Request, ownerID uuid.UUID) (*upload.SubmitRequest, func(), error) {
	var opened []multipart.File
	closeFiles := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	req := &upload.SubmitRequest{
		UploadID: strings.TrimSpace(r.FormValue("uploadId")),
		OwnerID:  ownerID,
		Title:    strings.TrimSpace(r.FormValue("title")),
		ArtistID: strings.TrimSpace(r.FormValue("artistId")),
		AlbumID:  strings.TrimSpace(r.FormValue("albumId")),
		GenreID:  strings.TrimSpace(r.FormValue("genreId")),
		Status:   strings.TrimSpace(r.FormValue("status")),
	}

	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return nil, closeFiles, apperror.WithMessage(apperror.ErrValidation, "duration must be a whole number of seconds")
		}
		req.DurationHint = &d
	}

	for _, part := range []struct {
		field string
		dst   **upload.File
	}{
		{"audio", &req.Audio},
		{"cover", &req.Cover},
	} {
		f, header, err := r.FormFile(part.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, closeFiles, apperror.WrapWithMessage(err, "bad_request",
				fmt.Sprintf("Could not read the %s file", part.field), http.StatusBadRequest)
		}
		opened = append(opened, f)

		if IsBlockedExtension(header.Filename) {
			return nil, closeFiles, apperror.WithMessage(apperror.ErrInvalidFileType,
				"This file type is not allowed for security reasons")
		}
		*part.dst = &upload.File{
			Content:     f,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    SanitizeFilename(header.Filename),
		}
	}

	return req, closeFiles, nil
}

func statusURL(baseURL, uploadID string) string {
	return fmt.Sprintf("%s/v1/uploads/%s/status", baseURL, url.PathEscape(uploadID))
}

func statusHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := GetOwnerID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}

		row, err := cfg.Status.GetStatus(r.Context(), r.PathValue("uploadId"), ownerID)
		if err != nil {
			apperror.WriteJSON(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, upload.NewStatusView(*row))
	}
}

func trackHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := GetOwnerID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}

		trackID, err := uuid.Parse(r.PathValue("trackId"))
		if err != nil {
			apperror.WriteJSON(w, r, apperror.ErrTrackNotFound)
			return
		}

		track, err := cfg.Status.GetTrack(r.Context(), trackID, ownerID)
		if err != nil {
			apperror.WriteJSON(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, upload.NewTrackView(*track))
	}
}
