package intent

// Curated term lists. Matching is case-insensitive substring matching on the
// lowercased text, so multi-word phrases match as written.

var emergencyPhrases = []string{
	"severe chest pain",
	"difficulty breathing",
	"unconscious",
	"stroke",
	"heart attack",
	"not breathing",
	"severe bleeding",
}

var symptomTerms = []string{
	// general
	"headache", "fever", "cough", "pain", "nausea", "vomiting", "fatigue", "weakness",
	"chills", "sweating", "loss of appetite", "weight loss", "weight gain", "tiredness",
	// cardiovascular and respiratory
	"chest pain", "heart pain", "irregular heartbeat", "palpitations",
	"shortness of breath", "difficulty breathing", "wheezing",
	"sore throat", "hoarse voice", "runny nose", "stuffy nose", "sinus pressure",
	"ear pain", "hearing loss", "ear discharge",
	// neurological
	"dizziness", "lightheadedness", "fainting", "seizure", "tremor", "numbness", "tingling",
	"memory loss", "confusion", "difficulty concentrating", "blurry vision", "double vision",
	// gastrointestinal
	"abdominal pain", "stomach pain", "cramps", "bloating", "diarrhea", "constipation",
	"heartburn", "acid reflux", "difficulty swallowing",
	// musculoskeletal
	"joint pain", "muscle pain", "back pain", "neck pain", "shoulder pain", "knee pain",
	"stiffness", "swelling", "muscle weakness", "muscle cramps",
	// skin
	"skin rash", "rash", "itching", "hives", "bruising", "bleeding", "dry skin", "hair loss",
	// urinary
	"frequent urination", "painful urination", "blood in urine",
	// mental
	"insomnia", "sleep problems", "mood swings", "irritability", "panic attacks", "stress",
}

var diseaseTerms = []string{
	// infectious
	"covid", "coronavirus", "influenza", "flu", "common cold", "pneumonia", "tuberculosis",
	"malaria", "dengue", "chikungunya", "typhoid", "cholera", "hepatitis", "hiv", "aids",
	// chronic
	"diabetes", "hypertension", "high blood pressure", "hypotension", "low blood pressure",
	"heart disease", "heart failure", "asthma", "copd", "bronchitis",
	// inflammatory
	"arthritis", "lupus", "multiple sclerosis", "psoriasis", "eczema",
	// cancer
	"cancer", "tumor", "leukemia", "lymphoma",
	// neurological
	"migraine", "epilepsy", "parkinson", "alzheimer", "dementia",
	// mental health
	"depression", "anxiety", "bipolar disorder", "schizophrenia", "ptsd",
	// other
	"gerd", "peptic ulcer", "gallstones", "appendicitis", "thyroid",
	"kidney stones", "urinary tract infection", "kidney disease",
	"anemia", "sickle cell", "allergies", "hay fever",
}
