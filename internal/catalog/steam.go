package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/streamnight/nextup/internal/fault"
	"go.uber.org/zap"
)

const opMetadata = "catalog.metadata"

// Metadata is the pre-filled form data for a catalog entry looked up by its
// external store app id.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TrailerURL  string `json:"trailer"`
	StoreURL    string `json:"store"`
	Cover       string `json:"cover"`
	Header      string `json:"header"`
}

// MetadataClientConfig configures the store metadata lookup client.
type MetadataClientConfig struct {
	APIURL     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// MetadataClient resolves catalog metadata from the Steam store API.
type MetadataClient struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMetadataClient constructs a metadata client with sane defaults.
func NewMetadataClient(cfg MetadataClientConfig) (*MetadataClient, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("catalog: metadata api url required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataClient{apiURL: cfg.APIURL, httpClient: httpClient, logger: logger}, nil
}

type appDetailsEntry struct {
	Success bool `json:"success"`
	Data    struct {
		Name             string `json:"name"`
		ShortDescription string `json:"short_description"`
		Movies           []struct {
			Webm struct {
				Max string `json:"max"`
			} `json:"webm"`
		} `json:"movies"`
		Screenshots []struct {
			PathThumbnail string `json:"path_thumbnail"`
		} `json:"screenshots"`
	} `json:"data"`
}

// Fetch resolves metadata for the given app id. Cover and header artwork
// URLs are only included when the CDN actually serves them.
func (c *MetadataClient) Fetch(ctx context.Context, appID string) (Metadata, error) {
	if appID == "" {
		return Metadata{}, fault.New(fault.KindNotFound, opMetadata, "app id required")
	}

	endpoint := fmt.Sprintf("%s?appids=%s&cc=en", c.apiURL, url.QueryEscape(appID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, fault.Internal(opMetadata, err)
	}
	response, err := c.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fault.Internal(opMetadata, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Metadata{}, fault.New(fault.KindNotFound, opMetadata, "app metadata not found")
	}

	var document map[string]appDetailsEntry
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return Metadata{}, fault.Internal(opMetadata, err)
	}
	entry, ok := document[appID]
	if !ok || !entry.Success {
		return Metadata{}, fault.New(fault.KindNotFound, opMetadata, "app metadata not found")
	}

	trailer := ""
	if len(entry.Data.Movies) > 0 {
		trailer = entry.Data.Movies[0].Webm.Max
	} else if len(entry.Data.Screenshots) > 0 {
		trailer = entry.Data.Screenshots[0].PathThumbnail
	}

	meta := Metadata{
		Title:       entry.Data.Name,
		Description: entry.Data.ShortDescription,
		TrailerURL:  SecureURL(trailer),
		StoreURL:    fmt.Sprintf("https://store.steampowered.com/app/%s/", appID),
	}

	cover := fmt.Sprintf("https://steamcdn-a.akamaihd.net/steam/apps/%s/library_600x900.jpg", appID)
	if c.assetExists(ctx, cover) {
		meta.Cover = cover
	}
	header := fmt.Sprintf("https://steamcdn-a.akamaihd.net/steam/apps/%s/header.jpg", appID)
	if c.assetExists(ctx, header) {
		meta.Header = header
	}

	return meta, nil
}

func (c *MetadataClient) assetExists(ctx context.Context, assetURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, assetURL, nil)
	if err != nil {
		return false
	}
	response, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("artwork probe failed", zap.String("url", assetURL), zap.Error(err))
		return false
	}
	defer response.Body.Close()
	return response.StatusCode == http.StatusOK
}
