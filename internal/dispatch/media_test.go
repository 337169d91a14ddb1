package dispatch

import "testing"

func TestParseObjectURL(t *testing.T) {
	bucket, key, ok := parseObjectURL("s3://media/tenants/t1/img.webp", "fallback")
	if !ok || bucket != "media" || key != "tenants/t1/img.webp" {
		t.Fatalf("parseObjectURL = (%q, %q, %v)", bucket, key, ok)
	}
}

func TestParseObjectURLEmptyBucketFallsBack(t *testing.T) {
	bucket, key, ok := parseObjectURL("s3:///img.webp", "fallback")
	if !ok || bucket != "fallback" || key != "img.webp" {
		t.Fatalf("parseObjectURL = (%q, %q, %v)", bucket, key, ok)
	}
}

func TestParseObjectURLRejectsNonObjectRefs(t *testing.T) {
	for _, raw := range []string{"https://cdn.example.com/img.webp", "s3://bucketonly", "s3://bucket/", ""} {
		if _, _, ok := parseObjectURL(raw, "fallback"); ok {
			t.Errorf("parseObjectURL(%q) unexpectedly parsed", raw)
		}
	}
}
