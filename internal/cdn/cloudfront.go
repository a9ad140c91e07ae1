package cdn

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// CloudFrontAPI is the subset of the CloudFront client used by CloudFrontInvalidator
type CloudFrontAPI interface {
	CreateInvalidation(
		ctx context.Context,
		params *cloudfront.CreateInvalidationInput,
		optFns ...func(*cloudfront.Options),
	) (*cloudfront.CreateInvalidationOutput, error)
}

// CloudFrontInvalidator invalidates paths of one distribution
type CloudFrontInvalidator struct {
	client         CloudFrontAPI
	distributionID string
	now            func() time.Time
}

// NewCloudFrontInvalidator creates an invalidator for distributionID
func NewCloudFrontInvalidator(client CloudFrontAPI, distributionID string) *CloudFrontInvalidator {
	return &CloudFrontInvalidator{
		client:         client,
		distributionID: distributionID,
		now:            time.Now,
	}
}

// NewCloudFrontInvalidatorFromConfig builds the CloudFront client from an AWS config
func NewCloudFrontInvalidatorFromConfig(cfg aws.Config, distributionID string) *CloudFrontInvalidator {
	return NewCloudFrontInvalidator(cloudfront.NewFromConfig(cfg), distributionID)
}

// Invalidate implements Invalidator. Duplicate paths are dropped and an empty
// path set is a no-op.
func (c *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) (string, error) {
	items := dedupe(paths)
	if len(items) == 0 {
		return "", nil
	}

	out, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(c.distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(strconv.FormatInt(c.now().UnixNano(), 10)),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(items))),
				Items:    items,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create invalidation: %w", err)
	}
	if out.Invalidation == nil {
		return "", nil
	}
	return aws.ToString(out.Invalidation.Id), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
