package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/icco/moviecatalog/models"
	"github.com/xeipuuv/gojsonschema"
)

// MovieInputSchema defines the JSON schema for create and update request bodies
var MovieInputSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 500},
		"release_year": {"type": "integer", "minimum": 0, "maximum": 32767},
		"rating": {"type": "integer", "minimum": 0, "maximum": 5},
		"description": {"type": "string"},
		"image_data": {"type": ["string", "null"]},
		"poster_path": {"type": ["string", "null"]}
	},
	"required": ["title", "release_year"],
	"additionalProperties": false
}`

var movieInputLoader = gojsonschema.NewStringLoader(MovieInputSchema)

// ValidateMovieInputJSON validates a request body against the movie schema
func ValidateMovieInputJSON(jsonData []byte) error {
	result, err := gojsonschema.Validate(movieInputLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("JSON validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}

// ValidateAndParseMovieInput validates, parses and sanitizes a request body.
// image_data is base64 encoded.
func ValidateAndParseMovieInput(jsonData []byte) (models.MovieInput, error) {
	if err := ValidateMovieInputJSON(jsonData); err != nil {
		return models.MovieInput{}, err
	}

	var in models.MovieInput
	if err := json.Unmarshal(jsonData, &in); err != nil {
		return models.MovieInput{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	SanitizeMovieInput(&in)
	if err := ValidateMovieInput(in); err != nil {
		return models.MovieInput{}, err
	}

	return in, nil
}

// SanitizeMovieInput trims text fields and drops empty optional values
func SanitizeMovieInput(in *models.MovieInput) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.PosterPath != nil {
		p := strings.TrimSpace(*in.PosterPath)
		if p == "" {
			in.PosterPath = nil
		} else {
			in.PosterPath = &p
		}
	}

	if len(in.ImageData) == 0 {
		in.ImageData = nil
	}
}
