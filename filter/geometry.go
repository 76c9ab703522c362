package filter

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// GeometryExtensionName is the arrow extension name of WKB geometry columns,
// as used by GeoArrow and the DuckDB spatial extension.
const GeometryExtensionName = "geoarrow.wkb"

// isGeometry reports whether field holds WKB geometries, either through a
// registered extension type or through field metadata alone.
func isGeometry(field arrow.Field) bool {
	if ext, ok := field.Type.(arrow.ExtensionType); ok {
		return ext.ExtensionName() == GeometryExtensionName
	}
	if idx := field.Metadata.FindKey("ARROW:extension:name"); idx >= 0 {
		return field.Metadata.Values()[idx] == GeometryExtensionName
	}
	return false
}

// NewGeometryField returns a binary field tagged as a WKB geometry column.
func NewGeometryField(name string, nullable bool) arrow.Field {
	return arrow.Field{
		Name:     name,
		Type:     arrow.BinaryTypes.Binary,
		Nullable: nullable,
		Metadata: arrow.MetadataFrom(map[string]string{
			"ARROW:extension:name": GeometryExtensionName,
		}),
	}
}
