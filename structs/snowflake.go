package structs

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Snowflakes embed their creation time in the top 42 bits as
// milliseconds since the platform epoch (2015-01-01T00:00:00Z).

// CreationTime extracts the timestamp an ID was minted at. The value
// is fixed at creation; it is read with a shift, never recomputed.
func CreationTime(id snowflake.ID) time.Time {
	return id.Time()
}

// SnowflakeAt builds a synthetic ID whose timestamp bits equal t,
// used as a pagination boundary ("messages before this instant").
func SnowflakeAt(t time.Time) snowflake.ID {
	return snowflake.New(t)
}
