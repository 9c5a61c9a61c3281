/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package badrows

import (
	"encoding/json"
)

// selfDescribingData is an Iglu self-describing JSON object which
// encompasses a schema key and a data payload
type selfDescribingData struct {
	schema string
	data   interface{}
}

func newSelfDescribingData(schema string, data interface{}) *selfDescribingData {
	return &selfDescribingData{schema: schema, data: data}
}

// get wraps the schema and data into a map
func (s *selfDescribingData) get() map[string]interface{} {
	return map[string]interface{}{
		"schema": s.schema,
		"data":   s.data,
	}
}

// String returns the compacted JSON form of the self-describing data
func (s *selfDescribingData) String() (string, error) {
	b, err := json.Marshal(s.get())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
