package receiver

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// HandleAPIGateway adapts Handle to an API Gateway proxy integration.
func (h *Handler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return toProxyResponse(errorResponse(http.StatusBadRequest, err)), nil
		}
		body = decoded
	}
	return toProxyResponse(h.Handle(ctx, proxyHeader(req), body)), nil
}

func proxyHeader(req events.APIGatewayProxyRequest) http.Header {
	h := http.Header{}
	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func toProxyResponse(resp Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.Status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(encodeBody(resp.Body)),
	}
}
