// Package provider is the anti-corruption layer between the alerting engine
// and the AWS SNS notification service. It exposes the topic publish and
// platform-endpoint operations behind narrow methods and maps every SDK
// failure onto the engine's tagged error codes, so classification upstream is
// a pure switch over types.ErrorCode and never message-substring matching.
package provider

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"spendwatch/internal/types"
)

// SNSAPI is the subset of the SNS client the engine uses. Production code
// passes *sns.Client; tests pass a fake.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	GetEndpointAttributes(ctx context.Context, params *sns.GetEndpointAttributesInput, optFns ...func(*sns.Options)) (*sns.GetEndpointAttributesOutput, error)
	SetEndpointAttributes(ctx context.Context, params *sns.SetEndpointAttributesInput, optFns ...func(*sns.Options)) (*sns.SetEndpointAttributesOutput, error)
	DeleteEndpoint(ctx context.Context, params *sns.DeleteEndpointInput, optFns ...func(*sns.Options)) (*sns.DeleteEndpointOutput, error)
	ListEndpointsByPlatformApplication(ctx context.Context, params *sns.ListEndpointsByPlatformApplicationInput, optFns ...func(*sns.Options)) (*sns.ListEndpointsByPlatformApplicationOutput, error)
}

// EndpointAttributes is the engine's view of a platform endpoint's state.
type EndpointAttributes struct {
	Enabled bool
	Token   string
}

// Endpoint pairs an endpoint's opaque provider reference with its attributes,
// as returned by listing.
type Endpoint struct {
	ARN        string
	Attributes EndpointAttributes
}

// Client wraps the SNS API with error mapping. It holds no state beyond the
// underlying SDK client and is safe for concurrent use.
type Client struct {
	api    SNSAPI
	logger types.Logger
}

// NewClient creates a provider client over the given SNS API.
func NewClient(api SNSAPI, logger types.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// PublishJSON publishes a channel-structured JSON message to the topic.
// The message must be a JSON object whose keys are channel names ("default",
// "APNS", ...), each value itself a JSON-encoded string. Returns the provider
// message ID.
func (c *Client) PublishJSON(ctx context.Context, topicARN, subject, message string) (string, error) {
	out, err := c.api.Publish(ctx, &sns.PublishInput{
		TopicArn:         aws.String(topicARN),
		Subject:          aws.String(subject),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return "", mapPublishError(err)
	}

	return aws.ToString(out.MessageId), nil
}

// CreateEndpoint registers a device token with the platform application and
// returns the opaque endpoint reference. SNS makes this idempotent: creating
// with a token that already has an endpoint (and identical attributes)
// returns the existing endpoint's reference.
func (c *Client) CreateEndpoint(ctx context.Context, platformARN, token, userData string) (string, error) {
	input := &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(platformARN),
		Token:                  aws.String(token),
	}
	if userData != "" {
		input.CustomUserData = aws.String(userData)
	}

	out, err := c.api.CreatePlatformEndpoint(ctx, input)
	if err != nil {
		return "", mapEndpointError(err)
	}

	return aws.ToString(out.EndpointArn), nil
}

// GetEndpoint fetches the current attributes of an endpoint.
func (c *Client) GetEndpoint(ctx context.Context, endpointARN string) (EndpointAttributes, error) {
	out, err := c.api.GetEndpointAttributes(ctx, &sns.GetEndpointAttributesInput{
		EndpointArn: aws.String(endpointARN),
	})
	if err != nil {
		return EndpointAttributes{}, mapEndpointError(err)
	}

	return attributesFromMap(out.Attributes), nil
}

// SetEndpointToken updates the endpoint's device token in place and
// re-enables it. The endpoint reference does not change.
func (c *Client) SetEndpointToken(ctx context.Context, endpointARN, token string) error {
	_, err := c.api.SetEndpointAttributes(ctx, &sns.SetEndpointAttributesInput{
		EndpointArn: aws.String(endpointARN),
		Attributes: map[string]string{
			"Token":   token,
			"Enabled": "true",
		},
	})
	if err != nil {
		return mapEndpointError(err)
	}
	return nil
}

// DeleteEndpoint removes an endpoint registration. Deleting an endpoint that
// no longer exists is not an error at the SNS level.
func (c *Client) DeleteEndpoint(ctx context.Context, endpointARN string) error {
	_, err := c.api.DeleteEndpoint(ctx, &sns.DeleteEndpointInput{
		EndpointArn: aws.String(endpointARN),
	})
	if err != nil {
		return mapEndpointError(err)
	}
	return nil
}

// ListEndpoints walks all endpoints of the platform application, following
// pagination.
func (c *Client) ListEndpoints(ctx context.Context, platformARN string) ([]Endpoint, error) {
	var endpoints []Endpoint
	var nextToken *string

	for {
		out, err := c.api.ListEndpointsByPlatformApplication(ctx, &sns.ListEndpointsByPlatformApplicationInput{
			PlatformApplicationArn: aws.String(platformARN),
			NextToken:              nextToken,
		})
		if err != nil {
			return nil, mapEndpointError(err)
		}

		for _, ep := range out.Endpoints {
			endpoints = append(endpoints, Endpoint{
				ARN:        aws.ToString(ep.EndpointArn),
				Attributes: attributesFromMap(ep.Attributes),
			})
		}

		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		nextToken = out.NextToken
	}

	return endpoints, nil
}

func attributesFromMap(attrs map[string]string) EndpointAttributes {
	return EndpointAttributes{
		Enabled: attrs["Enabled"] == "true",
		Token:   attrs["Token"],
	}
}

// mapPublishError maps an SNS Publish failure onto the engine's error codes.
// InvalidParameter on publish is how APNS payload rejections (oversized or
// malformed platform sub-payloads) surface, so it lands on the push-specific
// allowlist.
func mapPublishError(err error) error {
	var (
		invalidParam *snstypes.InvalidParameterException
		endpointOff  *snstypes.EndpointDisabledException
		platformOff  *snstypes.PlatformApplicationDisabledException
		throttled    *snstypes.ThrottledException
		internal     *snstypes.InternalErrorException
		notFound     *snstypes.NotFoundException
	)

	switch {
	case errors.As(err, &invalidParam):
		return types.NewAppError(types.ErrCodePushPayloadRejected,
			"provider rejected the message payload", err)
	case errors.As(err, &endpointOff):
		return types.NewAppError(types.ErrCodePushEndpointDisabled,
			"push endpoint is disabled", err)
	case errors.As(err, &platformOff):
		return types.NewAppError(types.ErrCodePushPlatformInvalid,
			"push platform application is disabled", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeProviderThrottled,
			"provider throttled the publish", err)
	case errors.As(err, &internal):
		return types.NewAppError(types.ErrCodeProviderUnavailable,
			"provider internal error", err)
	case errors.As(err, &notFound):
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"topic does not exist", err)
	default:
		return types.NewAppError(types.ErrCodeNetworkFailure,
			"publish transport failure", err)
	}
}

// mapEndpointError maps a platform-endpoint operation failure. Unlike
// publish, InvalidParameter here means the request itself was malformed
// (e.g. a token SNS will not accept), which is terminal but not a payload
// problem.
func mapEndpointError(err error) error {
	var (
		invalidParam *snstypes.InvalidParameterException
		platformOff  *snstypes.PlatformApplicationDisabledException
		throttled    *snstypes.ThrottledException
		internal     *snstypes.InternalErrorException
		notFound     *snstypes.NotFoundException
	)

	switch {
	case errors.As(err, &invalidParam):
		return types.NewAppError(types.ErrCodeValidationToken,
			"provider rejected the endpoint parameters", err)
	case errors.As(err, &platformOff):
		return types.NewAppError(types.ErrCodePushPlatformInvalid,
			"push platform application is disabled", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeProviderThrottled,
			"provider throttled the endpoint operation", err)
	case errors.As(err, &internal):
		return types.NewAppError(types.ErrCodeProviderUnavailable,
			"provider internal error", err)
	case errors.As(err, &notFound):
		return types.NewAppError(types.ErrCodePushEndpointDisabled,
			"endpoint does not exist", err)
	default:
		return types.NewAppError(types.ErrCodeNetworkFailure,
			"endpoint operation transport failure", err)
	}
}
