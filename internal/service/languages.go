package service

// Voice and locale mappings plus localized canned prompts for the supported
// survey languages.

var voiceByLanguage = map[string]string{
	"en": "alice",
	"hi": "alice",
	"bn": "alice",
	"te": "alice",
	"mr": "alice",
	"ta": "alice",
	"gu": "alice",
	"kn": "alice",
	"ml": "alice",
	"pa": "alice",
}

var localeByLanguage = map[string]string{
	"en": "en-US",
	"hi": "hi-IN",
	"bn": "bn-IN",
	"te": "te-IN",
	"mr": "mr-IN",
	"ta": "ta-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"pa": "pa-IN",
}

var completionMessages = map[string]string{
	"en": "Thank you for participating in our survey. Your responses have been recorded. Goodbye!",
	"hi": "हमारे सर्वेक्षण में भाग लेने के लिए धन्यवाद। आपके जवाब दर्ज कर लिए गए हैं। अलविदा!",
	"bn": "আমাদের জরিপে অংশগ্রহণের জন্য ধন্যবাদ। আপনার উত্তরগুলি রেকর্ড করা হয়েছে। বিদায়!",
	"te": "మా సర్వేలో పాల్గొన్నందుకు ధన్యవాదాలు. మీ సమాధానాలు రికార్డ్ చేయబడ్డాయి. వీడ్కోలు!",
	"mr": "आमच्या सर्वेक्षणात सहभाग घेतल्याबद्दल धन्यवाद. तुमची उत्तरे नोंदवली आहेत. निरोप!",
	"ta": "எங்கள் கணக்கெடுப்பில் பங்கேற்றதற்கு நன்றி. உங்கள் பதில்கள் பதிவு செய்யப்பட்டுள்ளன. பிரியாவிடை!",
	"gu": "આપણા સર્વેમાં ભાગ લેવા માટે આભાર. તમારા જવાબો રેકોર્ડ કરવામાં આવ્યા છે. આવજો!",
	"kn": "ನಮ್ಮ ಸಮೀಕ್ಷೆಯಲ್ಲಿ ಭಾಗವಹಿಸಿದ್ದಕ್ಕೆ ಧನ್ಯವಾದಗಳು. ನಿಮ್ಮ ಉತ್ತರಗಳನ್ನು ದಾಖಲಿಸಲಾಗಿದೆ. ವಿದಾಯ!",
	"ml": "ഞങ്ങളുടെ സർവേയിൽ പങ്കെടുത്തതിന് നന്ദി. നിങ്ങളുടെ ഉത്തരങ്ങൾ രേഖപ്പെടുത്തിയിരിക്കുന്നു. വിട!",
	"pa": "ਸਾਡੇ ਸਰਵੇਖਣ ਵਿੱਚ ਹਿੱਸਾ ਲੈਣ ਲਈ ਧੰਨਵਾਦ। ਤੁਹਾਡੇ ਜਵਾਬ ਦਰਜ ਕੀਤੇ ਗਏ ਹਨ। ਅਲਵਿਦਾ!",
}

var noInputMessages = map[string]string{
	"en": "I didn't hear your response. Please try again.",
	"hi": "मैंने आपका जवाब नहीं सुना। कृपया फिर से कोशिश करें।",
	"bn": "আমি আপনার উত্তর শুনতে পাইনি। অনুগ্রহ করে আবার চেষ্টা করুন।",
	"te": "నేను మీ సమాధానం వినలేదు. దయచేసి మళ్లీ ప్రయత్నించండి.",
	"mr": "मी तुमचे उत्तर ऐकलं नाही. कृपया पुन्हा प्रयत्न करा.",
	"ta": "நான் உங்கள் பதிலைக் கேட்கவில்லை. தயவுசெய்து மீண்டும் முயற்சிக்கவும்.",
	"gu": "મેં તમારો જવાબ સાંભળ્યો નથી. કૃપા કરીને ફરીથી પ્રયાસ કરો.",
	"kn": "ನಾನು ನಿಮ್ಮ ಉತ್ತರವನ್ನು ಕೇಳಲಿಲ್ಲ. ದಯವಿಟ್ಟು ಮತ್ತೆ ಪ್ರಯತ್ನಿಸಿ.",
	"ml": "ഞാൻ നിങ്ങളുടെ ഉത്തരം കേട്ടില്ല. ദയവായി വീണ്ടും ശ്രമിക്കുക.",
	"pa": "ਮੈਂ ਤੁਹਾਡਾ ਜਵਾਬ ਨਹੀਂ ਸੁਣਿਆ। ਕਿਰਪਾ ਕਰਕੇ ਦੁਬਾਰਾ ਕੋਸ਼ਿਸ਼ ਕਰੋ।",
}

var greetingMessages = map[string]string{
	"en": "Hello! We are conducting a short survey and would value your answers.",
	"hi": "नमस्ते! हम एक छोटा सर्वेक्षण कर रहे हैं और आपके जवाब हमारे लिए महत्वपूर्ण हैं।",
}

func VoiceForLanguage(language string) string {
	if v, ok := voiceByLanguage[language]; ok {
		return v
	}
	return "alice"
}

func LocaleForLanguage(language string) string {
	if l, ok := localeByLanguage[language]; ok {
		return l
	}
	return "en-US"
}

func completionMessage(language string) string {
	if m, ok := completionMessages[language]; ok {
		return m
	}
	return completionMessages["en"]
}

func noInputMessage(language string) string {
	if m, ok := noInputMessages[language]; ok {
		return m
	}
	return noInputMessages["en"]
}

func greetingMessage(language string) string {
	if m, ok := greetingMessages[language]; ok {
		return m
	}
	return greetingMessages["en"]
}
