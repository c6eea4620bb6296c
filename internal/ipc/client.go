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

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Telecine.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Telecine.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the daemon answers on the socket.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Telecine.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Telecine.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobSubmit enqueues a new media job.
func (c *Client) JobSubmit(req JobSubmitRequest) (*JobSubmitResponse, error) {
	var resp JobSubmitResponse
	if err := c.client.Call("Telecine.JobSubmit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList returns jobs optionally filtered by statuses.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	var resp JobListResponse
	req := JobListRequest{Statuses: statuses}
	if err := c.client.Call("Telecine.JobList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobDescribe returns details for a single job.
func (c *Client) JobDescribe(id string) (*JobDescribeResponse, error) {
	var resp JobDescribeResponse
	req := JobDescribeRequest{ID: id}
	if err := c.client.Call("Telecine.JobDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobCancel stops a job that has not finished.
func (c *Client) JobCancel(id string) (*JobCancelResponse, error) {
	var resp JobCancelResponse
	req := JobCancelRequest{ID: id}
	if err := c.client.Call("Telecine.JobCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobRetry requeues failed jobs.
func (c *Client) JobRetry(ids []string) (*JobRetryResponse, error) {
	var resp JobRetryResponse
	req := JobRetryRequest{IDs: ids}
	if err := c.client.Call("Telecine.JobRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobClearCompleted removes completed jobs.
func (c *Client) JobClearCompleted() (*JobClearCompletedResponse, error) {
	var resp JobClearCompletedResponse
	if err := c.client.Call("Telecine.JobClearCompleted", JobClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobHealth returns job queue diagnostics.
func (c *Client) JobHealth() (*JobHealthResponse, error) {
	var resp JobHealthResponse
	if err := c.client.Call("Telecine.JobHealth", JobHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Telecine.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadInitiate opens a multipart upload session.
func (c *Client) UploadInitiate(req UploadInitiateRequest) (*UploadInitiateResponse, error) {
	var resp UploadInitiateResponse
	if err := c.client.Call("Telecine.UploadInitiate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadComplete assembles a finished multipart upload.
func (c *Client) UploadComplete(req UploadCompleteRequest) (*UploadCompleteResponse, error) {
	var resp UploadCompleteResponse
	if err := c.client.Call("Telecine.UploadComplete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadAbort releases a multipart upload session.
func (c *Client) UploadAbort(uploadID, key string) (*UploadAbortResponse, error) {
	var resp UploadAbortResponse
	req := UploadAbortRequest{UploadID: uploadID, Key: key}
	if err := c.client.Call("Telecine.UploadAbort", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadPresign issues a single presigned PUT for a small file.
func (c *Client) UploadPresign(req UploadPresignRequest) (*UploadPresignResponse, error) {
	var resp UploadPresignResponse
	if err := c.client.Call("Telecine.UploadPresign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignPlayback issues playback credentials for a published source.
func (c *Client) SignPlayback(req SignPlaybackRequest) (*SignPlaybackResponse, error) {
	var resp SignPlaybackResponse
	if err := c.client.Call("Telecine.SignPlayback", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Telecine.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
