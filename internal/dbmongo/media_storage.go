package dbmongo

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"govibe/internal/common"
)

type MediaStorage struct {
	gridFS *gridfs.Bucket
}

func NewMediaStorage(mongoClient *MongoClient) *MediaStorage {
	return &MediaStorage{
		gridFS: mongoClient.GridFS,
	}
}

type MediaFile struct {
	ID         string               `json:"id"`          // GridFS ObjectID
	Filename   string               `json:"filename"`    // Original filename
	Size       int64                `json:"size"`        // File size in bytes
	FileType   common.MediaFileType `json:"file_type"`   // image or video
	UploadedBy string               `json:"uploaded_by"` // Member ID who uploaded
	UploadedAt time.Time            `json:"uploaded_at"` // Upload timestamp
}

func (ms *MediaStorage) UploadFile(ctx context.Context, filename, mimeType, uploaderID string, content io.Reader) (*MediaFile, error) {
	fileType := common.DetectFileType(mimeType)

	metadata := bson.M{
		"file_type":   fileType.String(),
		"mime_type":   mimeType,
		"uploaded_by": uploaderID,
		"uploaded_at": time.Now(),
	}

	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := ms.gridFS.OpenUploadStream(filename, opts)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer stream.Close()

	size, err := io.Copy(stream, content)
	if err != nil {
		return nil, fmt.Errorf("file copy failed: %w", err)
	}

	return &MediaFile{
		ID:         stream.FileID.(primitive.ObjectID).Hex(),
		Filename:   filename,
		Size:       size,
		FileType:   fileType,
		UploadedBy: uploaderID,
		UploadedAt: time.Now(),
	}, nil
}

func (ms *MediaStorage) DownloadFile(ctx context.Context, fileID string) (io.Reader, *MediaFile, error) {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid file ID: %w", err)
	}

	stream, err := ms.gridFS.OpenDownloadStream(objectID)
	if err != nil {
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}

	fileInfo := stream.GetFile()
	var metadata bson.M
	if fileInfo.Metadata != nil {
		bson.Unmarshal(fileInfo.Metadata, &metadata)
	}

	mediaFile := &MediaFile{
		ID:         fileID,
		Filename:   fileInfo.Name,
		Size:       fileInfo.Length,
		FileType:   common.MediaFileType(metaString(metadata, "file_type")),
		UploadedBy: metaString(metadata, "uploaded_by"),
		UploadedAt: fileInfo.UploadDate,
	}

	return stream, mediaFile, nil
}

func (ms *MediaStorage) DeleteFile(ctx context.Context, fileID string) error {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return fmt.Errorf("invalid file ID: %w", err)
	}
	return ms.gridFS.Delete(objectID)
}

func metaString(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
