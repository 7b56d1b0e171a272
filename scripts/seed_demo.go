// Seeds a demo survey with three questions and a handful of contacts so the
// dialer can be exercised against a fresh database.
//
// Usage: go run scripts/seed_demo.go

package main

import (
	"fmt"
	"log"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/model"
	"voice_survey_backend/pkg/database"
	"voice_survey_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, true)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	survey := &model.Survey{
		Title:              "Customer Satisfaction Demo",
		Description:        "Short demo survey used to exercise the dialer end to end.",
		Status:             model.SurveyDraft,
		PrimaryLanguage:    "en",
		SupportedLanguages: model.JSONList{"en", "hi"},
		GreetingTranslations: model.JSONMap{
			"en": "Hello! We are running a short three question survey about your recent experience.",
			"hi": "नमस्ते! हम आपके हाल के अनुभव के बारे में तीन सवालों का एक छोटा सर्वेक्षण कर रहे हैं।",
		},
		Questions: []model.Question{
			{
				Text:        "Are you satisfied with our service?",
				Type:        model.QuestionYesNo,
				OrderNumber: 1,
				Translations: model.JSONMap{
					"hi": "क्या आप हमारी सेवा से संतुष्ट हैं?",
				},
			},
			{
				Text:        "On a scale of one to ten, how likely are you to recommend us?",
				Type:        model.QuestionRating,
				OrderNumber: 2,
				Translations: model.JSONMap{
					"hi": "एक से दस के पैमाने पर, आप हमें दूसरों को सुझाने की कितनी संभावना रखते हैं?",
				},
			},
			{
				Text:        "Which channel do you prefer for support?",
				Type:        model.QuestionMultipleChoice,
				OrderNumber: 3,
				Options:     model.JSONList{"Phone", "Email", "Chat"},
				Translations: model.JSONMap{
					"hi": "सहायता के लिए आप कौन सा माध्यम पसंद करते हैं?",
				},
			},
		},
	}

	if err := db.Create(survey).Error; err != nil {
		log.Fatalf("Failed to create demo survey: %v", err)
	}

	contacts := []model.Contact{
		{SurveyID: survey.ID, PhoneNumber: "+15551230001", Name: "Asha", PreferredLanguage: "hi"},
		{SurveyID: survey.ID, PhoneNumber: "+15551230002", Name: "Ben", PreferredLanguage: "en"},
		{SurveyID: survey.ID, PhoneNumber: "+15551230003", Name: "Chitra", PreferredLanguage: "hi"},
		{SurveyID: survey.ID, PhoneNumber: "+15551230004", Name: "Dan", PreferredLanguage: "en"},
		{SurveyID: survey.ID, PhoneNumber: "+15551230005", Name: "Esha", PreferredLanguage: "en"},
	}
	if err := db.Create(&contacts).Error; err != nil {
		log.Fatalf("Failed to create demo contacts: %v", err)
	}

	fmt.Printf("Seeded survey %d with %d questions and %d contacts\n",
		survey.ID, len(survey.Questions), len(contacts))
	fmt.Printf("Activate it with: POST /api/surveys/%d/start\n", survey.ID)
}
