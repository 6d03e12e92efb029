package scanner

import "fmt"

// responseLanguage is appended to every prompt; all user-facing text is Polish.
const responseLanguage = "Respond in Polish."

const analysisPrompt = "Identify the food in this image and provide an estimated calorie count, " +
	"a brief description of the meal, and a breakdown of its macronutrients (protein, fat, carbohydrates). " +
	"Also, provide an explanation of the factors considered for the estimation. " + responseLanguage

// recipePrompt embeds the prior analysis verbatim.
func recipePrompt(analysis string) string {
	return fmt.Sprintf("Based on the following food analysis: \"%s\", please generate a detailed recipe for the meal. "+
		"The recipe should include a list of ingredients and step-by-step instructions. %s",
		analysis, responseLanguage)
}

func alternativePrompt(analysis string) string {
	return fmt.Sprintf("Based on the following food analysis: \"%s\", please suggest a healthier alternative meal. "+
		"Provide a brief description of the alternative and compare its macronutrient and calorie values to the original meal. %s",
		analysis, responseLanguage)
}
