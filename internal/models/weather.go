package models

import "time"

// WeatherBundle is the normalized aggregate of current conditions, forecast,
// astronomy, and air quality for one location. It is regenerated wholesale on
// each successful fetch.
type WeatherBundle struct {
	Location       BundleLocation   `json:"location"`
	Current        CurrentWeather   `json:"current"`
	Astronomy      Astronomy        `json:"astronomy"`
	AirQuality     AirQuality       `json:"airQuality"`
	HourlyForecast []HourlyForecast `json:"hourlyForecast"`
	WeeklyForecast []DailyForecast  `json:"weeklyForecast"`
	FetchedAt      time.Time        `json:"fetchedAt"`
}

// BundleLocation is the location block of a bundle. Lat/Lon are the canonical
// coordinates returned by the weather API.
type BundleLocation struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TzID      string  `json:"tzId"`
	Localtime string  `json:"localtime"`
}

// CurrentWeather holds the current conditions.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Humidity    float64 `json:"humidity"`
	WindKph     float64 `json:"windKph"`
	WindDir     string  `json:"windDir"`
	UV          float64 `json:"uv"`
	PrecipMM    float64 `json:"precipMm"`
	PressureMB  float64 `json:"pressureMb"`
	VisKM       float64 `json:"visKm"`
	Cloud       float64 `json:"cloud"`
	IsDay       bool    `json:"isDay"`
	LastUpdated int64   `json:"lastUpdated"`
}

// Astronomy holds sun and moon times for the forecast day.
type Astronomy struct {
	Sunrise          string  `json:"sunrise"`
	Sunset           string  `json:"sunset"`
	Moonrise         string  `json:"moonrise"`
	Moonset          string  `json:"moonset"`
	MoonPhase        string  `json:"moonPhase"`
	MoonIllumination float64 `json:"moonIllumination"`
	IsMoonUp         bool    `json:"isMoonUp"`
	IsSunUp          bool    `json:"isSunUp"`
}

// AirQuality holds pollutant concentrations and index values.
type AirQuality struct {
	CO           float64 `json:"co"`
	NO2          float64 `json:"no2"`
	O3           float64 `json:"o3"`
	SO2          float64 `json:"so2"`
	PM25         float64 `json:"pm2_5"`
	PM10         float64 `json:"pm10"`
	USEPAIndex   int     `json:"usEpaIndex"`
	GBDefraIndex int     `json:"gbDefraIndex"`
}

// HourlyForecast is one hour of the first forecast day.
type HourlyForecast struct {
	Time         int64      `json:"time"`
	Temperature  float64    `json:"temperature"`
	FeelsLike    float64    `json:"feelsLike"`
	Description  string     `json:"description"`
	Icon         string     `json:"icon"`
	WindKph      float64    `json:"windKph"`
	Humidity     float64    `json:"humidity"`
	ChanceOfRain float64    `json:"chanceOfRain"`
	ChanceOfSnow float64    `json:"chanceOfSnow"`
	AirQuality   AirQuality `json:"airQuality"`
}

// DailyForecast is one day of the multi-day forecast.
type DailyForecast struct {
	Date          string  `json:"date"`
	DateEpoch     int64   `json:"dateEpoch"`
	MaxTemp       float64 `json:"maxTemp"`
	MinTemp       float64 `json:"minTemp"`
	AvgTemp       float64 `json:"avgTemp"`
	MaxWindKph    float64 `json:"maxWindKph"`
	TotalPrecipMM float64 `json:"totalPrecipMm"`
	AvgHumidity   float64 `json:"avgHumidity"`
	ChanceOfRain  float64 `json:"chanceOfRain"`
	ChanceOfSnow  float64 `json:"chanceOfSnow"`
	Description   string  `json:"description"`
	Icon          string  `json:"icon"`
	UV            float64 `json:"uv"`
}

// OutlookEntry is one slot of the seven-day outlook.
type OutlookEntry struct {
	Time           int64   `json:"time"`
	TimeText       string  `json:"timeText"`
	Temperature    float64 `json:"temperature"`
	FeelsLike      float64 `json:"feelsLike"`
	TempMin        float64 `json:"tempMin"`
	TempMax        float64 `json:"tempMax"`
	Humidity       float64 `json:"humidity"`
	Description    string  `json:"description"`
	Icon           string  `json:"icon"`
	ConditionID    int     `json:"conditionId"`
	WindSpeed      float64 `json:"windSpeed"`
	WindDeg        float64 `json:"windDeg"`
	ChanceOfPrecip float64 `json:"chanceOfPrecip"`
	Clouds         float64 `json:"clouds"`
	Visibility     float64 `json:"visibility"`
}
