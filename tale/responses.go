package tale

import "github.com/theimaginaryfoundation/tale-studio/tale/provider"

type metaResponse struct {
	Name     string `json:"name" jsonschema:"required"`
	Language string `json:"language" jsonschema:"required"`
	Synopsis string `json:"synopsis" jsonschema:"required"`
	Outline  string `json:"outline" jsonschema:"required"`
}

type bookMetaResponse struct {
	Name     string `json:"name" jsonschema:"required"`
	Language string `json:"language" jsonschema:"required"`
}

type passageResponse struct {
	Paragraph        string   `json:"paragraph" jsonschema:"required"`
	ShortMemory      string   `json:"short_memory" jsonschema:"required"`
	NextInstructions []string `json:"next_instructions" jsonschema:"required"`
}

type instructionsResponse struct {
	NextInstructions []string `json:"next_instructions" jsonschema:"required"`
}

type selectionResponse struct {
	Selected           int    `json:"selected" jsonschema:"required"`
	Reason             string `json:"reason" jsonschema:"required"`
	RevisedInstruction string `json:"revised_instruction" jsonschema:"required"`
}

var (
	metaSchema         = provider.GenerateSchema[metaResponse]()
	bookMetaSchema     = provider.GenerateSchema[bookMetaResponse]()
	passageSchema      = provider.GenerateSchema[passageResponse]()
	instructionsSchema = provider.GenerateSchema[instructionsResponse]()
	selectionSchema    = provider.GenerateSchema[selectionResponse]()
)
