// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DatasetImportTask represents the data structure for a dataset import job.
// The object referenced by ObjectName is a conversation CSV export in MinIO.
type DatasetImportTask struct {
	DatasetID  uint   `json:"dataset_id"`
	FileMD5    string `json:"file_md5"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	UserID     uint   `json:"user_id"`
}
