package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start its background services.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Stride.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop its background services.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Stride.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Stride.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PodcastAdd subscribes to a feed.
func (c *Client) PodcastAdd(req PodcastAddRequest) (*PodcastAddResponse, error) {
	var resp PodcastAddResponse
	if err := c.client.Call("Stride.PodcastAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PodcastList returns all subscriptions.
func (c *Client) PodcastList() (*PodcastListResponse, error) {
	var resp PodcastListResponse
	if err := c.client.Call("Stride.PodcastList", PodcastListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PodcastGet returns one subscription.
func (c *Client) PodcastGet(id int64) (*PodcastGetResponse, error) {
	var resp PodcastGetResponse
	if err := c.client.Call("Stride.PodcastGet", PodcastGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PodcastUpdate changes a subscription's limit or auto-download flag.
func (c *Client) PodcastUpdate(req PodcastUpdateRequest) (*PodcastUpdateResponse, error) {
	var resp PodcastUpdateResponse
	if err := c.client.Call("Stride.PodcastUpdate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PodcastRemove unsubscribes and deletes local artifacts.
func (c *Client) PodcastRemove(id int64) (*PodcastRemoveResponse, error) {
	var resp PodcastRemoveResponse
	if err := c.client.Call("Stride.PodcastRemove", PodcastRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh refetches one feed, or every feed when id is zero.
func (c *Client) Refresh(id int64) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.client.Call("Stride.Refresh", RefreshRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeList returns a podcast's episodes, newest first.
func (c *Client) EpisodeList(podcastID int64) (*EpisodeListResponse, error) {
	var resp EpisodeListResponse
	if err := c.client.Call("Stride.EpisodeList", EpisodeListRequest{PodcastID: podcastID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeGet returns one episode.
func (c *Client) EpisodeGet(id int64) (*EpisodeGetResponse, error) {
	var resp EpisodeGetResponse
	if err := c.client.Call("Stride.EpisodeGet", EpisodeGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeDownload queues an episode for transfer.
func (c *Client) EpisodeDownload(id int64) (*EpisodeDownloadResponse, error) {
	var resp EpisodeDownloadResponse
	if err := c.client.Call("Stride.EpisodeDownload", EpisodeDownloadRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadNew queues a podcast's newest undownloaded episodes.
func (c *Client) DownloadNew(podcastID int64) (*DownloadNewResponse, error) {
	var resp DownloadNewResponse
	if err := c.client.Call("Stride.DownloadNew", DownloadNewRequest{PodcastID: podcastID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeCancel aborts an in-flight download.
func (c *Client) EpisodeCancel(id int64) (*EpisodeCancelResponse, error) {
	var resp EpisodeCancelResponse
	if err := c.client.Call("Stride.EpisodeCancel", EpisodeCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeRemove deletes an episode and its artifacts.
func (c *Client) EpisodeRemove(id int64) (*EpisodeRemoveResponse, error) {
	var resp EpisodeRemoveResponse
	if err := c.client.Call("Stride.EpisodeRemove", EpisodeRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EpisodeConvert re-runs conversion for a downloaded episode.
func (c *Client) EpisodeConvert(id int64) (*EpisodeConvertResponse, error) {
	var resp EpisodeConvertResponse
	if err := c.client.Call("Stride.EpisodeConvert", EpisodeConvertRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncStart runs a device reconciliation immediately.
func (c *Client) SyncStart(podcastID *int64) (*SyncStartResponse, error) {
	var resp SyncStartResponse
	if err := c.client.Call("Stride.SyncStart", SyncStartRequest{PodcastID: podcastID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncHistory returns recent sync runs, newest first.
func (c *Client) SyncHistory(limit int) (*SyncHistoryResponse, error) {
	var resp SyncHistoryResponse
	if err := c.client.Call("Stride.SyncHistory", SyncHistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeviceStatus probes for the sync target.
func (c *Client) DeviceStatus() (*DeviceStatusResponse, error) {
	var resp DeviceStatusResponse
	if err := c.client.Call("Stride.DeviceStatus", DeviceStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StorageStats reports disk totals and library directory sizes.
func (c *Client) StorageStats() (*StorageStatsResponse, error) {
	var resp StorageStatsResponse
	if err := c.client.Call("Stride.StorageStats", StorageStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StorageBreakdown reports per-podcast usage, largest first.
func (c *Client) StorageBreakdown() (*StorageBreakdownResponse, error) {
	var resp StorageBreakdownResponse
	if err := c.client.Call("Stride.StorageBreakdown", StorageBreakdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup runs one janitor pass by name, or every pass for "all".
func (c *Client) Cleanup(pass string) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.client.Call("Stride.Cleanup", CleanupRequest{Pass: pass}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsGet lists persisted overrides and the adjustable keys.
func (c *Client) SettingsGet() (*SettingsGetResponse, error) {
	var resp SettingsGetResponse
	if err := c.client.Call("Stride.SettingsGet", SettingsGetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsUpdate validates and persists setting overrides.
func (c *Client) SettingsUpdate(updates map[string]string) (*SettingsUpdateResponse, error) {
	var resp SettingsUpdateResponse
	if err := c.client.Call("Stride.SettingsUpdate", SettingsUpdateRequest{Updates: updates}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsReset drops every override.
func (c *Client) SettingsReset() (*SettingsResetResponse, error) {
	var resp SettingsResetResponse
	if err := c.client.Call("Stride.SettingsReset", SettingsResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
