package reply

import (
	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/model"
)

// Templates are keyed by intent then language. {symptoms} and {diseases} are
// replaced with the comma-joined extracted terms. Every intent must carry an
// "en" entry; it is the fallback for every other language.
var templates = map[intent.Label]map[string]string{
	intent.Emergency: {
		"en": "🚨 EMERGENCY ALERT!\n\n" +
			"⚠️ Based on your symptoms ({symptoms}), this may require immediate medical attention!\n\n" +
			"✅ IMMEDIATE ACTIONS:\n" +
			"• CALL EMERGENCY SERVICES (108) IMMEDIATELY\n" +
			"• DO NOT DRIVE YOURSELF TO HOSPITAL\n" +
			"• STAY CALM and sit comfortably\n" +
			"• LOOSEN TIGHT CLOTHING\n" +
			"• INFORM FAMILY MEMBERS\n\n" +
			"⏱️ TIME IS CRITICAL - Act immediately!",
		"hi": "🚨 आपातकालीन चेतावनी!\n\n" +
			"⚠️ आपके लक्षणों ({symptoms}) के आधार पर, इसे तत्काल चिकित्सा ध्यान की आवश्यकता हो सकती है!\n\n" +
			"✅ तत्काल कार्रवाई:\n" +
			"• आपातकालीन सेवाओं (108) को तुरंत कॉल करें\n" +
			"• खुद अस्पताल न जाएं\n" +
			"• शांत रहें और आराम से बैठें\n" +
			"• परिवार के सदस्यों को सूचित करें\n\n" +
			"⏱️ समय महत्वपूर्ण है - तुरंत कार्रवाई करें!",
		"ta": "🚨 அவசர எச்சரிக்கை!\n\n" +
			"⚠️ உங்கள் அறிகுறிகளின் அடிப்படையில் ({symptoms}), இது உடனடி மருத்துவ கவனிப்பை தேவைப்படலாம்!\n\n" +
			"✅ உடனடி நடவடிக்கைகள்:\n" +
			"• அவசர சேவைகளுக்கு (108) உடனடியாக அழைக்கவும்\n" +
			"• நீங்களாக மருத்துவமனைக்கு செல்ல வேண்டாம்\n" +
			"• குடும்ப உறுப்பினர்களுக்கு தெரியப்படுத்தவும்\n\n" +
			"⏱️ நேரம் முக்கியம் - உடனடியாக செயல்படவும்!",
	},
	intent.SymptomInquiry: {
		"en": "🩺 I understand you're experiencing: {symptoms}.\n\n" +
			"✅ GENERAL ADVICE:\n" +
			"• Rest and stay hydrated\n" +
			"• Monitor your symptoms and note any changes\n" +
			"• Avoid self-medicating without advice\n\n" +
			"⚠️ See a doctor if symptoms worsen or last more than 2-3 days.\n" +
			"🚨 If this becomes severe, call 108 immediately.",
		"hi": "🩺 मैं समझता हूं कि आपको ये लक्षण हैं: {symptoms}।\n\n" +
			"✅ सामान्य सलाह:\n" +
			"• आराम करें और पर्याप्त पानी पिएं\n" +
			"• अपने लक्षणों पर नज़र रखें\n" +
			"• बिना सलाह के दवा न लें\n\n" +
			"⚠️ यदि लक्षण बिगड़ें या 2-3 दिन से अधिक रहें तो डॉक्टर से मिलें।\n" +
			"🚨 गंभीर होने पर तुरंत 108 पर कॉल करें।",
	},
	intent.DiseaseInquiry: {
		"en": "📋 You asked about: {diseases}.\n\n" +
			"✅ WHAT YOU CAN DO:\n" +
			"• Follow the treatment plan from your doctor\n" +
			"• Take prescribed medicines on time\n" +
			"• Keep regular check-ups\n" +
			"• Maintain a healthy diet and routine\n\n" +
			"💡 For a diagnosis or treatment changes, please consult a qualified doctor.",
		"hi": "📋 आपने इसके बारे में पूछा: {diseases}।\n\n" +
			"✅ आप क्या कर सकते हैं:\n" +
			"• डॉक्टर की बताई उपचार योजना का पालन करें\n" +
			"• निर्धारित दवाएं समय पर लें\n" +
			"• नियमित जांच कराते रहें\n\n" +
			"💡 निदान या उपचार के लिए कृपया योग्य डॉक्टर से सलाह लें।",
	},
	intent.GeneralHealth: {
		"en": "👋 Hello! I'm your health assistant.\n\n" +
			"You can ask me about:\n" +
			"• Symptoms you are experiencing\n" +
			"• Diseases and conditions\n" +
			"• General health and prevention tips\n\n" +
			"🚨 In an emergency, call 108 immediately.",
		"hi": "👋 नमस्ते! मैं आपका स्वास्थ्य सहायक हूं।\n\n" +
			"आप मुझसे पूछ सकते हैं:\n" +
			"• आपके लक्षणों के बारे में\n" +
			"• बीमारियों और स्थितियों के बारे में\n" +
			"• सामान्य स्वास्थ्य और बचाव के सुझाव\n\n" +
			"🚨 आपातकाल में तुरंत 108 पर कॉल करें।",
		"ta": "👋 வணக்கம்! நான் உங்கள் சுகாதார உதவியாளர்.\n\n" +
			"அறிகுறிகள், நோய்கள் மற்றும் பொது சுகாதாரம் பற்றி கேளுங்கள்.\n\n" +
			"🚨 அவசரநிலையில் உடனடியாக 108 ஐ அழைக்கவும்.",
	},
}

var apologies = map[string]string{
	"en": "I apologize, but I'm having trouble processing your message. " +
		"Please try rephrasing your health query. If this is urgent, call 108.",
	"hi": "क्षमा करें, आपका संदेश संसाधित करने में समस्या हो रही है। " +
		"कृपया अपना प्रश्न दोबारा लिखें। आपातकाल में 108 पर कॉल करें।",
}

var unsupported = map[string]string{
	"image": "📸 I received your image. Currently I can only understand text messages. " +
		"Please describe your symptoms or health concern in text.",
	"audio": "🎤 I received your voice message. Currently I can only understand text messages. " +
		"Please type your health question.",
	"other": "📎 I received your file. Currently I can only understand text messages. " +
		"Please type your health question.",
}

var buttonReplies = map[string]string{
	"call_emergency": "🚨 Please call 108 for immediate emergency assistance. Stay calm and provide your location clearly.",
	"find_hospital":  "🏥 Please share your location so we can point you to the nearest hospital. If it is urgent, call 108.",
	"first_aid":      "🩹 Basic first aid: 1) Stay calm 2) Make sure the area is safe 3) Call for help 4) Do not move an injured person unless necessary.",
}

var followUps = map[intent.Label]string{
	intent.SymptomInquiry: "🩺 Would you like more information about:\n" +
		"• Home remedies\n" +
		"• When to see a doctor\n" +
		"• Related symptoms to watch for\n" +
		"• Prevention tips\n\n" +
		"Just let me know!",
}

var emergencyQuickReplies = []model.QuickReply{
	{ID: "call_emergency", Title: "Call 108"},
	{ID: "find_hospital", Title: "Find Hospital"},
	{ID: "first_aid", Title: "First Aid Tips"},
}
