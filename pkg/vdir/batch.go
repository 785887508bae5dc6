package vdir

import "github.com/3leaps/bucketdir/pkg/provider"

// BuildDeleteRequest converts keys into a bulk delete payload, preserving
// order. Empty input yields a request with zero objects.
func BuildDeleteRequest(keys []string) *provider.DeleteRequest {
	objects := make([]provider.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, provider.ObjectIdentifier{Key: k})
	}
	return &provider.DeleteRequest{Objects: objects}
}
