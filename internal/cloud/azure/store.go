// Package azure lists and reads Azure Blob Storage containers for az:// drops.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/sharedrop/sharedrop/internal/cloud"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
)

// ErrMissingAccountURL is returned when [azure] account_url is not configured.
var ErrMissingAccountURL = errors.New("azure account_url is not configured")

// Store implements cloud.Store over one container.
type Store struct {
	client    *azblob.Client
	container *container.Client
	name      string
}

// Options configure NewStore beyond the [azure] config section.
type Options struct {
	HTTPClient *nethttp.Client // shared proxy-aware client
	MaxRetries int             // 0 keeps the SDK default; negative disables retries
}

// NewStore creates a store for containerName authorised by the configured SAS token.
func NewStore(containerName string, cfg config.AzureConfig, opts Options) (*Store, error) {
	serviceURL, err := buildSASURL(cfg)
	if err != nil {
		return nil, err
	}

	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: int32(opts.MaxRetries)},
		},
	}
	if opts.HTTPClient != nil {
		clientOpts.Transport = opts.HTTPClient
	}

	client, err := azblob.NewClientWithNoCredential(serviceURL, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &Store{
		client:    client,
		container: client.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
	}, nil
}

// buildSASURL appends the SAS token to the account URL.
func buildSASURL(cfg config.AzureConfig) (string, error) {
	account := strings.TrimRight(strings.TrimSpace(cfg.AccountURL), "/")
	if account == "" {
		return "", ErrMissingAccountURL
	}
	sas := strings.TrimPrefix(strings.TrimSpace(cfg.SASToken), "?")
	if sas == "" {
		return account + "/", nil
	}
	return account + "/?" + sas, nil
}

// Container returns the container name.
func (s *Store) Container() string {
	return s.name
}

// List implements cloud.Store with one page of a hierarchical listing.
func (s *Store) List(ctx context.Context, prefix, token string) (cloud.Page, error) {
	listOpts := &container.ListBlobsHierarchyOptions{
		MaxResults: toPtr(int32(constants.DirectoryPageSize)),
	}
	if prefix != "" {
		listOpts.Prefix = toPtr(prefix)
	}
	if token != "" {
		listOpts.Marker = toPtr(token)
	}

	pager := s.container.NewListBlobsHierarchyPager("/", listOpts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return cloud.Page{}, err
	}

	page := cloud.Page{}
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			page.Objects = append(page.Objects, cloud.Object{Key: *item.Name, Size: size})
		}
		for _, p := range resp.Segment.BlobPrefixes {
			if p != nil && p.Name != nil {
				page.Prefixes = append(page.Prefixes, *p.Name)
			}
		}
	}
	if resp.NextMarker != nil {
		page.Next = *resp.NextMarker
	}
	return page, nil
}

// Stat implements cloud.Store with GetProperties.
func (s *Store) Stat(ctx context.Context, key string) (int64, bool, error) {
	props, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == nethttp.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return size, true, nil
}

// Get implements cloud.Store with DownloadStream.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.name, key, nil)
	if err != nil {
		return nil, fmt.Errorf("get az://%s/%s: %w", s.name, key, err)
	}
	return resp.Body, nil
}

func toPtr[T any](v T) *T {
	return &v
}
