// Package s3 stores artifacts in Amazon S3.
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
//	if err != nil {
//	    return err
//	}
//	blobs := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "stores/")
//
// Reads are ranged GETs. Writes stream through the SDK upload manager, which
// switches to multipart uploads for large artifacts and aborts them on
// failure, so a failed Save never leaves a partial object behind.
package s3
