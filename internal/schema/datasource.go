package schema

import cerrors "github.com/Aman-CERP/corpusctl/internal/errors"

const (
	dataSourceTypeBlob        = "azureblob"
	softDeleteDetectionPolicy = "#Microsoft.Azure.Search.NativeBlobSoftDeleteDeletionDetectionPolicy"
)

// DataSourceCredentials carries the storage connection string.
type DataSourceCredentials struct {
	ConnectionString string `json:"connectionString"`
}

// DataContainer names the blob container an indexer reads from.
type DataContainer struct {
	Name  string `json:"name"`
	Query string `json:"query,omitempty"`
}

// DeletionDetectionPolicy tells the indexer how removed blobs are detected.
type DeletionDetectionPolicy struct {
	ODataType string `json:"@odata.type"`
}

// DataSource is a blob data source definition.
type DataSource struct {
	Name              string                   `json:"name"`
	Description       string                   `json:"description,omitempty"`
	Type              string                   `json:"type"`
	Credentials       DataSourceCredentials    `json:"credentials"`
	Container         DataContainer            `json:"container"`
	DeletionDetection *DeletionDetectionPolicy `json:"dataDeletionDetectionPolicy,omitempty"`
}

// BuildDataSource creates a blob data source with native soft-delete detection.
func BuildDataSource(name, connectionString, container string) (DataSource, error) {
	switch {
	case name == "":
		return DataSource{}, cerrors.ValidationError("data source name is required", nil)
	case connectionString == "":
		return DataSource{}, cerrors.New(cerrors.ErrCodeCredentialMissing, "storage connection string is required", nil)
	case container == "":
		return DataSource{}, cerrors.ValidationError("data source container is required", nil)
	}
	return DataSource{
		Name:              name,
		Type:              dataSourceTypeBlob,
		Credentials:       DataSourceCredentials{ConnectionString: connectionString},
		Container:         DataContainer{Name: container},
		DeletionDetection: &DeletionDetectionPolicy{ODataType: softDeleteDetectionPolicy},
	}, nil
}

// Redacted returns a copy safe to log.
func (d DataSource) Redacted() DataSource {
	if d.Credentials.ConnectionString != "" {
		d.Credentials.ConnectionString = "<redacted>"
	}
	return d
}
