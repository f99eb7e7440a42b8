package client

// Raw payloads as returned by the weather API. Nested objects the transform
// step requires are pointers so absence is distinguishable from zero values.
// Shape lists the top-level and data-level keys of the body for diagnostics.

type RawCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

type RawAirQuality struct {
	CO           float64 `json:"co"`
	NO2          float64 `json:"no2"`
	O3           float64 `json:"o3"`
	SO2          float64 `json:"so2"`
	PM25         float64 `json:"pm2_5"`
	PM10         float64 `json:"pm10"`
	USEPAIndex   int     `json:"us-epa-index"`
	GBDefraIndex int     `json:"gb-defra-index"`
}

type RawLocation struct {
	Name           string  `json:"name"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TzID           string  `json:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch"`
	Localtime      string  `json:"localtime"`
}

type RawCurrent struct {
	LastUpdatedEpoch int64          `json:"last_updated_epoch"`
	TempC            float64        `json:"temp_c"`
	IsDay            int            `json:"is_day"`
	Condition        *RawCondition  `json:"condition"`
	WindKph          float64        `json:"wind_kph"`
	WindDir          string         `json:"wind_dir"`
	PressureMB       float64        `json:"pressure_mb"`
	PrecipMM         float64        `json:"precip_mm"`
	Humidity         float64        `json:"humidity"`
	Cloud            float64        `json:"cloud"`
	FeelslikeC       float64        `json:"feelslike_c"`
	VisKM            float64        `json:"vis_km"`
	UV               float64        `json:"uv"`
	AirQuality       *RawAirQuality `json:"air_quality"`
}

// CurrentPayload is the /weather/current response.
type CurrentPayload struct {
	Message string `json:"message"`
	Data    struct {
		Location *RawLocation `json:"location"`
		Current  *RawCurrent  `json:"current"`
	} `json:"data"`
	Shape []string `json:"-"`
}

type RawDay struct {
	MaxtempC          float64       `json:"maxtemp_c"`
	MintempC          float64       `json:"mintemp_c"`
	AvgtempC          float64       `json:"avgtemp_c"`
	MaxwindKph        float64       `json:"maxwind_kph"`
	TotalprecipMM     float64       `json:"totalprecip_mm"`
	Avghumidity       float64       `json:"avghumidity"`
	DailyChanceOfRain float64       `json:"daily_chance_of_rain"`
	DailyChanceOfSnow float64       `json:"daily_chance_of_snow"`
	Condition         *RawCondition `json:"condition"`
	UV                float64       `json:"uv"`
}

type RawAstro struct {
	Sunrise          string  `json:"sunrise"`
	Sunset           string  `json:"sunset"`
	Moonrise         string  `json:"moonrise"`
	Moonset          string  `json:"moonset"`
	MoonPhase        string  `json:"moon_phase"`
	MoonIllumination float64 `json:"moon_illumination"`
	IsMoonUp         int     `json:"is_moon_up"`
	IsSunUp          int     `json:"is_sun_up"`
}

type RawHour struct {
	TimeEpoch    int64          `json:"time_epoch"`
	TempC        float64        `json:"temp_c"`
	Condition    *RawCondition  `json:"condition"`
	WindKph      float64        `json:"wind_kph"`
	Humidity     float64        `json:"humidity"`
	FeelslikeC   float64        `json:"feelslike_c"`
	ChanceOfRain float64        `json:"chance_of_rain"`
	ChanceOfSnow float64        `json:"chance_of_snow"`
	AirQuality   *RawAirQuality `json:"air_quality"`
}

type RawForecastDay struct {
	Date      string    `json:"date"`
	DateEpoch int64     `json:"date_epoch"`
	Day       *RawDay   `json:"day"`
	Astro     *RawAstro `json:"astro"`
	Hour      []RawHour `json:"hour"`
}

// ForecastPayload is the /weather/forecast response.
type ForecastPayload struct {
	Data struct {
		Forecast *struct {
			ForecastDay []RawForecastDay `json:"forecastday"`
		} `json:"forecast"`
	} `json:"data"`
	Shape []string `json:"-"`
}

// AstronomyPayload is the /weather/astronomy response.
type AstronomyPayload struct {
	Data struct {
		Astronomy *struct {
			Astro *RawAstro `json:"astro"`
		} `json:"astronomy"`
	} `json:"data"`
	Shape []string `json:"-"`
}

type RawOutlookEntry struct {
	Dt    int64  `json:"dt"`
	DtTxt string `json:"dt_txt"`
	Main  struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Pop    float64 `json:"pop"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Visibility float64 `json:"visibility"`
}

// SevenDayPayload is the /weather/forecast/7days response.
type SevenDayPayload struct {
	Data struct {
		Forecast []RawOutlookEntry `json:"forecast"`
	} `json:"data"`
	Shape []string `json:"-"`
}

// AirQualityPayload is the /weather/air-quality response.
type AirQualityPayload struct {
	Data struct {
		Current *struct {
			AirQuality *RawAirQuality `json:"air_quality"`
		} `json:"current"`
	} `json:"data"`
	Shape []string `json:"-"`
}
