package objectstore

import "testing"

func TestParseLocationURI(t *testing.T) {
	cases := []struct {
		name     string
		location string
		bucket   string
		key      string
		wantErr  bool
	}{
		{
			name:     "nested path",
			location: "minio://minio.minio:9000/ds001/data/sub-01/anat/T1w.nii.gz",
			bucket:   "ds001",
			key:      "data/sub-01/anat/T1w.nii.gz",
		},
		{
			name:     "single level key",
			location: "https://object.store/core-testproject/raw.dat",
			bucket:   "core-testproject",
			key:      "raw.dat",
		},
		{
			name:     "missing scheme",
			location: "minio.minio:9000/bucket/key",
			wantErr:  true,
		},
		{
			name:     "missing object path",
			location: "minio://host/bucketonly",
			wantErr:  true,
		},
		{
			name:     "trailing slash only",
			location: "minio://host/bucket/",
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, key, err := ParseLocationURI(tc.location)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseLocationURI(%q) = (%q, %q), want error", tc.location, bucket, key)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocationURI(%q): %v", tc.location, err)
			}
			if bucket != tc.bucket || key != tc.key {
				t.Fatalf("ParseLocationURI(%q) = (%q, %q), want (%q, %q)", tc.location, bucket, key, tc.bucket, tc.key)
			}
		})
	}
}

func TestBuildLocationURI(t *testing.T) {
	got := BuildLocationURI("minio", "minio.minio:9000", "ds001", "data/folder/file.txt")
	want := "minio://minio.minio:9000/ds001/data/folder/file.txt"
	if got != want {
		t.Fatalf("BuildLocationURI = %q, want %q", got, want)
	}

	// Round trip.
	bucket, key, err := ParseLocationURI(got)
	if err != nil || bucket != "ds001" || key != "data/folder/file.txt" {
		t.Fatalf("round trip = (%q, %q, %v)", bucket, key, err)
	}
}
