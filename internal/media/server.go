package media

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"govibe/internal/auth"
	"govibe/internal/common"
	"govibe/internal/dbmongo"
)

// HTTPServer is the media host: uploads land in GridFS, downloads stream
// back by file id. Upload requires a bearer token so blobs are attributable
// to a member.
type HTTPServer struct {
	storage *dbmongo.MediaStorage
	baseURL string
	jwt     *auth.JWTManager
	log     zerolog.Logger
}

func NewHTTPServer(mongoClient *dbmongo.MongoClient, baseURL string, jwt *auth.JWTManager, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		storage: dbmongo.NewMediaStorage(mongoClient),
		baseURL: strings.TrimRight(baseURL, "/"),
		jwt:     jwt,
		log:     log,
	}
}

func (s *HTTPServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/media/{kind}/upload", s.upload).Methods("POST")
	router.HandleFunc("/media/{fileId}", s.serveFile).Methods("GET")
	router.HandleFunc("/health", s.health).Methods("GET")
	return router
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router().ServeHTTP(w, r)
}

const maxUploadBytes = 32 << 20

func (s *HTTPServer) upload(w http.ResponseWriter, r *http.Request) {
	uploaderID, err := s.authorize(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind := common.MediaFileType(mux.Vars(r)["kind"])
	if !kind.IsValid() {
		http.Error(w, "Unknown media kind", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = contentTypeFor(header.Filename)
	}

	mediaFile, err := s.storage.UploadFile(r.Context(), header.Filename, mimeType, uploaderID, file)
	if err != nil {
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	s.log.Info().
		Str("file_id", mediaFile.ID).
		Str("uploader", uploaderID).
		Int64("size", mediaFile.Size).
		Msg("file uploaded")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url": fmt.Sprintf("%s/media/%s", s.baseURL, mediaFile.ID),
		"id":  mediaFile.ID,
	})
}

func (s *HTTPServer) serveFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	fileReader, mediaFile, err := s.storage.DownloadFile(r.Context(), fileID)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(mediaFile.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", mediaFile.Size))

	if _, err := io.Copy(w, fileReader); err != nil {
		s.log.Warn().Err(err).Str("file_id", fileID).Msg("stream interrupted")
	}
}

func (s *HTTPServer) authorize(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", fmt.Errorf("missing bearer token")
	}
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("media host is healthy"))
}
