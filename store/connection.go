package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ConnectionString holds the settings parsed from a storage connection string
// of the form "Region=eu-west-1;Endpoint=http://localhost:8000;AccessKeyId=...;SecretAccessKey=...".
//
// Empty settings fall back to the default AWS configuration chain.
type ConnectionString struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
}

// ParseConnectionString parses a semicolon separated list of Key=Value pairs.
// Keys are case-insensitive. Empty segments are ignored.
func ParseConnectionString(raw string) (ConnectionString, error) {
	var cs ConnectionString
	if strings.TrimSpace(raw) == "" {
		return cs, ErrMissingCredential
	}

	fields := map[string]*string{
		"region":          &cs.Region,
		"endpoint":        &cs.Endpoint,
		"accesskeyid":     &cs.AccessKeyID,
		"secretaccesskey": &cs.SecretAccessKey,
		"sessiontoken":    &cs.SessionToken,
		"profile":         &cs.Profile,
	}

	seen := 0
	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return ConnectionString{}, invalidConnection("segment %q is not Key=Value", redactSegment(segment))
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return ConnectionString{}, invalidConnection("empty key")
		}
		ptr, known := fields[strings.ToLower(key)]
		if !known {
			return ConnectionString{}, invalidConnection("unknown key %q", key)
		}
		*ptr = strings.TrimSpace(value)
		seen++
	}

	if seen == 0 {
		return ConnectionString{}, invalidConnection("no settings")
	}
	if (cs.AccessKeyID == "") != (cs.SecretAccessKey == "") {
		return ConnectionString{}, invalidConnection("AccessKeyId and SecretAccessKey must be set together")
	}
	return cs, nil
}

// String renders the connection string with the credentials redacted.
func (cs ConnectionString) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("Region", cs.Region)
	add("Endpoint", cs.Endpoint)
	if cs.AccessKeyID != "" {
		add("AccessKeyId", "REDACTED")
	}
	if cs.SecretAccessKey != "" {
		add("SecretAccessKey", "REDACTED")
	}
	if cs.SessionToken != "" {
		add("SessionToken", "REDACTED")
	}
	add("Profile", cs.Profile)
	return strings.Join(parts, ";")
}

// NewClient builds a DynamoDB client from the connection settings.
func NewClient(ctx context.Context, cs ConnectionString) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cs.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cs.Region))
	}
	if cs.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cs.Profile))
	}
	if cs.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cs.AccessKeyID, cs.SecretAccessKey, cs.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cs.Endpoint != "" {
			o.BaseEndpoint = aws.String(cs.Endpoint)
		}
	}), nil
}

func redactSegment(segment string) string {
	if len(segment) > 8 {
		return segment[:4] + "..."
	}
	return segment
}
