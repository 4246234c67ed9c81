package scene

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Source lists and reads scene documents from a backing storage.
type Source interface {
	// List returns the names of the documents. Names carry the file
	// extension that tells their format.
	List(ctx context.Context) ([]string, error)

	Read(ctx context.Context, name string) ([]byte, error)
}

// Load reads every document of src into the store. Scenes are named after
// their document without extension. Invalid documents are skipped and
// logged.
func Load(ctx context.Context, src Source, store *Store) (int, error) {
	names, err := src.List(ctx)
	if err != nil {
		return 0, errors.New("listing scene documents failed").Wrap(err)
	}

	loaded := 0
	for _, name := range names {
		format, ok := FormatOf(name)
		if !ok {
			continue
		}

		id := strings.TrimSuffix(path.Base(filepath.ToSlash(name)), path.Ext(name))
		if err := loadScene(ctx, src, store, id, name, format); err != nil {
			logs.Warn(errors.New("loading scene failed").
				WithTag("scene_id", id).
				WithTag("document", name).
				Wrap(err))
			continue
		}

		logs.WithTag("scene_id", id).
			WithTag("document", name).
			Info("scene loaded")
		loaded++
	}
	return loaded, nil
}

func loadScene(ctx context.Context, src Source, store *Store, id, name string, format Format) error {
	data, err := src.Read(ctx, name)
	if err != nil {
		return err
	}

	doc, err := DecodeDocument(data, format)
	if err != nil {
		return err
	}

	_, err = store.Put(id, doc)
	return err
}

// DirSource reads scene documents from a directory.
type DirSource struct {
	Dir string
}

func (s DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s DirSource) Read(ctx context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, filepath.Base(name)))
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// MinioSource reads scene documents from an object storage bucket.
type MinioSource struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

func NewMinioSource(c MinioConfig) (*MinioSource, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.Secure,
	})
	if err != nil {
		return nil, errors.New("creating minio client failed").
			WithTag("endpoint", c.Endpoint).
			Wrap(err)
	}

	return &MinioSource{
		Client: client,
		Bucket: c.Bucket,
		Prefix: c.Prefix,
	}, nil
}

func (s *MinioSource) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var names []string
	for obj := range s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{
		Prefix:    s.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.New("listing bucket failed").
				WithTag("bucket", s.Bucket).
				WithTag("prefix", s.Prefix).
				Wrap(obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (s *MinioSource) Read(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.New("getting object failed").
			WithTag("bucket", s.Bucket).
			WithTag("key", name).
			Wrap(err)
	}
	defer obj.Close()

	return io.ReadAll(obj)
}
