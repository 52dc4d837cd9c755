package dataapi

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls TelemetryService methods with JSON payloads.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call sends payload to method and returns the raw JSON response.
func (c *Client) Call(ctx context.Context, method string, payload []byte, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, FullMethod(method), wrapperspb.String(string(payload)), out, opts...); err != nil {
		return nil, err
	}
	return []byte(out.GetValue()), nil
}

// CallJSON marshals req, calls method and unmarshals the response into resp.
func (c *Client) CallJSON(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	payload := []byte("{}")
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", method, err)
		}
		payload = b
	}

	raw, err := c.Call(ctx, method, payload, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
