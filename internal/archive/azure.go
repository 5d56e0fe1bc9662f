package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/sources"
)

// AzureArchiver stores collection batches in Azure Blob Storage
type AzureArchiver struct {
	client        *azblob.Client
	containerName string
}

var _ Archiver = (*AzureArchiver)(nil)

// NewAzureArchiver creates an Azure Blob archiver using managed identity
func NewAzureArchiver(accountName, containerName string) (*AzureArchiver, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	archiver := &AzureArchiver{
		client:        client,
		containerName: containerName,
	}

	if err := archiver.ensureContainer(); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return archiver, nil
}

func (a *AzureArchiver) ensureContainer() error {
	ctx := context.Background()

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", a.containerName)
	} else {
		logrus.Infof("Created container %s", a.containerName)
	}

	return nil
}

// ArchiveBatch uploads one collection run as a JSON blob
func (a *AzureArchiver) ArchiveBatch(clusterID uuid.UUID, platform models.Platform, posts []sources.RawPost) error {
	now := time.Now()
	data, err := encodeBatch(clusterID, platform, posts, now)
	if err != nil {
		return err
	}

	name := batchName(clusterID, platform, now)
	ctx := context.Background()

	_, err = a.client.UploadBuffer(ctx, a.containerName, name, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024), // 1MB blocks
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", name, err)
	}

	logrus.Infof("Archived %d %s posts to %s", len(posts), platform, name)
	return nil
}

// Retrieve downloads an archived batch by blob name
func (a *AzureArchiver) Retrieve(name string) ([]byte, error) {
	ctx := context.Background()

	response, err := a.client.DownloadStream(ctx, a.containerName, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", name, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	return data, nil
}

// List returns archived batch names under a prefix
func (a *AzureArchiver) List(prefix string) ([]string, error) {
	ctx := context.Background()

	var blobNames []string
	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				blobNames = append(blobNames, *blob.Name)
			}
		}
	}

	return blobNames, nil
}
