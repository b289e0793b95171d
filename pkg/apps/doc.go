// Package apps contains ready-made gateway applications.
//
//   - Hello answers every request with a fixed plain-text greeting.
//   - EnvironDump echoes the request environment, useful for checking what
//     an application actually receives.
//   - S3Objects serves text objects from an S3 bucket.
package apps
